package delivery

import (
	"context"
	"sync"
	"time"

	"postbridge/internal/domain/entity"
	"postbridge/internal/infra/platform"
	"postbridge/internal/repository"
)

// fakeDeliveryRepo is an in-memory DeliveryRepository for usecase tests.
type fakeDeliveryRepo struct {
	mu      sync.Mutex
	records map[int64]*entity.DeliveryRecord
	nextID  int64

	getErr    error
	createErr error
	updateErr error
	listErr   error
	countErr  error
	deleteErr error

	// countFn overrides CountByStatusSince when set.
	countFn func(since time.Time) map[entity.DeliveryStatus]int64

	// depth is returned by CountRetryQueue.
	depth repository.RetryQueueDepth

	// deleteReturns maps status to the row count DeleteTerminalBefore reports.
	deleteReturns map[entity.DeliveryStatus]int64

	// deleteCutoffs records the cutoff passed per status.
	deleteCutoffs map[entity.DeliveryStatus]time.Time

	// updates records every UpdateResult call in order.
	updates []*entity.DeliveryRecord
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{
		records:       make(map[int64]*entity.DeliveryRecord),
		deleteReturns: make(map[entity.DeliveryStatus]int64),
		deleteCutoffs: make(map[entity.DeliveryStatus]time.Time),
	}
}

func (f *fakeDeliveryRepo) put(rec *entity.DeliveryRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.ID == 0 {
		f.nextID++
		rec.ID = f.nextID
	}
	f.records[rec.PostID] = rec
}

func (f *fakeDeliveryRepo) Get(_ context.Context, postID int64) (*entity.DeliveryRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[postID], nil
}

func (f *fakeDeliveryRepo) CreateIfAbsent(_ context.Context, postID int64, maxAttempts int) (*entity.DeliveryRecord, bool, error) {
	if f.createErr != nil {
		return nil, false, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[postID]; ok {
		return rec, false, nil
	}
	f.nextID++
	rec := entity.NewDeliveryRecord(postID)
	rec.ID = f.nextID
	rec.MaxAttempts = maxAttempts
	f.records[postID] = rec
	return rec, true, nil
}

func (f *fakeDeliveryRepo) UpdateResult(_ context.Context, rec *entity.DeliveryRecord) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.PostID] = rec
	f.updates = append(f.updates, rec)
	return nil
}

func (f *fakeDeliveryRepo) ListDueRetries(_ context.Context, now time.Time, limit int) ([]*entity.DeliveryRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []*entity.DeliveryRecord
	for _, rec := range f.records {
		if rec.Status == entity.DeliveryRetrying &&
			rec.NextRetryAt != nil && !rec.NextRetryAt.After(now) {
			due = append(due, rec)
		}
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (f *fakeDeliveryRepo) CountByStatusSince(_ context.Context, since time.Time) (map[entity.DeliveryStatus]int64, error) {
	if f.countErr != nil {
		return nil, f.countErr
	}
	if f.countFn != nil {
		return f.countFn(since), nil
	}
	return map[entity.DeliveryStatus]int64{}, nil
}

func (f *fakeDeliveryRepo) CountRetryQueue(_ context.Context, _ time.Time) (repository.RetryQueueDepth, error) {
	if f.countErr != nil {
		return repository.RetryQueueDepth{}, f.countErr
	}
	return f.depth, nil
}

func (f *fakeDeliveryRepo) DeleteTerminalBefore(_ context.Context, status entity.DeliveryStatus, cutoff time.Time) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCutoffs[status] = cutoff
	return f.deleteReturns[status], nil
}

// fakePostRepo serves posts from a map; missing ids return (nil, nil).
type fakePostRepo struct {
	posts map[int64]*entity.Post
	err   error
}

func (f *fakePostRepo) Get(_ context.Context, id int64) (*entity.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.posts[id], nil
}

// fakeClient scripts the platform submit call.
type fakeClient struct {
	mu       sync.Mutex
	calls    int
	submitFn func(ctx context.Context, post *entity.Post) (*platform.SubmitResult, error)
}

func (f *fakeClient) Submit(ctx context.Context, post *entity.Post) (*platform.SubmitResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.submitFn(ctx, post)
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeGate reports a fixed activation state.
type fakeGate struct {
	active bool
}

func (f *fakeGate) Active() bool { return f.active }

// fakeScheduler records scheduling calls.
type fakeScheduler struct {
	mu         sync.Mutex
	enqueueErr error
	enqueued   []int64
	retries    []scheduledRetry
}

type scheduledRetry struct {
	postID int64
	delay  time.Duration
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{}
}

func (f *fakeScheduler) Enqueue(postID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.enqueued = append(f.enqueued, postID)
	return nil
}

func (f *fakeScheduler) ScheduleRetry(postID int64, delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, scheduledRetry{postID: postID, delay: delay})
}

func (f *fakeScheduler) enqueuedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.enqueued...)
}

func publishedPost(id int64) *entity.Post {
	publishedAt := time.Now().Add(-time.Hour)
	return &entity.Post{
		ID:          id,
		Title:       "A post",
		Slug:        "a-post",
		URL:         "https://blog.example.com/a-post",
		Published:   true,
		PublishedAt: &publishedAt,
	}
}

func newTestWorker(repo *fakeDeliveryRepo, posts *fakePostRepo, client *fakeClient, active bool) *Worker {
	return NewWorker(repo, posts, client, &fakeGate{active: active},
		NewBackoff(), WorkerConfig{SubmitTimeout: time.Second})
}
