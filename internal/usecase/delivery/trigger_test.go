package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"postbridge/internal/domain/entity"
	"postbridge/internal/infra/platform"
)

func TestTrigger_CreatesAndEnqueues(t *testing.T) {
	repo := newFakeDeliveryRepo()
	sched := newFakeScheduler()
	trigger := NewTrigger(repo, &fakeGate{active: true}, sched)

	if err := trigger.HandlePostPublished(context.Background(), NewPublishEvent(7, true)); err != nil {
		t.Fatalf("HandlePostPublished returned error: %v", err)
	}

	rec := repo.records[7]
	if rec == nil {
		t.Fatal("expected a delivery record to be created")
	}
	if rec.Status != entity.DeliveryPending {
		t.Errorf("expected pending record, got %s", rec.Status)
	}
	if rec.MaxAttempts != entity.DefaultMaxAttempts {
		t.Errorf("expected default attempt budget, got %d", rec.MaxAttempts)
	}
	if got := sched.enqueuedIDs(); len(got) != 1 || got[0] != 7 {
		t.Errorf("expected enqueue of post 7, got %v", got)
	}
}

func TestTrigger_Inactive(t *testing.T) {
	repo := newFakeDeliveryRepo()
	sched := newFakeScheduler()
	trigger := NewTrigger(repo, &fakeGate{active: false}, sched)

	if err := trigger.HandlePostPublished(context.Background(), NewPublishEvent(7, true)); err != nil {
		t.Fatalf("HandlePostPublished returned error: %v", err)
	}

	if len(repo.records) != 0 {
		t.Error("inactive gate must not create records")
	}
	if len(sched.enqueuedIDs()) != 0 {
		t.Error("inactive gate must not enqueue")
	}
}

func TestTrigger_ExistingRecordDecisions(t *testing.T) {
	retryAt := time.Now().Add(time.Minute)

	tests := []struct {
		name        string
		seed        func(rec *entity.DeliveryRecord)
		wantEnqueue bool
	}{
		{
			name: "pending record is a no-op",
			seed: func(rec *entity.DeliveryRecord) {
				rec.Status = entity.DeliveryPending
			},
			wantEnqueue: false,
		},
		{
			name: "retrying record is a no-op",
			seed: func(rec *entity.DeliveryRecord) {
				rec.Status = entity.DeliveryRetrying
				rec.AttemptCount = 1
				rec.NextRetryAt = &retryAt
			},
			wantEnqueue: false,
		},
		{
			name: "delivered record is a no-op",
			seed: func(rec *entity.DeliveryRecord) {
				now := time.Now()
				rec.Status = entity.DeliverySuccess
				rec.AttemptCount = 1
				rec.ExternalPostID = "ext-7"
				rec.PostedAt = &now
			},
			wantEnqueue: false,
		},
		{
			name: "failed record with budget left re-enqueues",
			seed: func(rec *entity.DeliveryRecord) {
				rec.Status = entity.DeliveryFailed
				rec.AttemptCount = 1
			},
			wantEnqueue: true,
		},
		{
			name: "exhausted record is a no-op",
			seed: func(rec *entity.DeliveryRecord) {
				rec.Status = entity.DeliveryFailed
				rec.AttemptCount = entity.DefaultMaxAttempts
			},
			wantEnqueue: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeDeliveryRepo()
			rec := entity.NewDeliveryRecord(7)
			tt.seed(rec)
			repo.put(rec)

			sched := newFakeScheduler()
			trigger := NewTrigger(repo, &fakeGate{active: true}, sched)

			// A record already exists, so this is a republish.
			if err := trigger.HandlePostPublished(context.Background(), NewPublishEvent(7, false)); err != nil {
				t.Fatalf("HandlePostPublished returned error: %v", err)
			}

			enqueued := len(sched.enqueuedIDs()) > 0
			if enqueued != tt.wantEnqueue {
				t.Errorf("enqueued = %v, want %v", enqueued, tt.wantEnqueue)
			}
		})
	}
}

func TestTrigger_DuplicateGuardToken(t *testing.T) {
	repo := newFakeDeliveryRepo()
	sched := newFakeScheduler()
	trigger := NewTrigger(repo, &fakeGate{active: true}, sched)

	event := NewPublishEvent(7, true)

	// Simulate re-entrant dispatch: the token is registered as in-flight
	// when the duplicate arrives.
	trigger.mu.Lock()
	trigger.inFlight[event.GuardToken] = struct{}{}
	trigger.mu.Unlock()

	if err := trigger.HandlePostPublished(context.Background(), event); err != nil {
		t.Fatalf("HandlePostPublished returned error: %v", err)
	}

	if len(repo.records) != 0 {
		t.Error("duplicate event must not create a record")
	}
	if len(sched.enqueuedIDs()) != 0 {
		t.Error("duplicate event must not enqueue")
	}
}

func TestTrigger_RepoErrorIsSwallowed(t *testing.T) {
	repo := newFakeDeliveryRepo()
	repo.createErr = errors.New("connection refused")
	sched := newFakeScheduler()
	trigger := NewTrigger(repo, &fakeGate{active: true}, sched)

	// The trigger runs in the content-save path; a storage failure must
	// never surface to the caller.
	if err := trigger.HandlePostPublished(context.Background(), NewPublishEvent(7, true)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(sched.enqueuedIDs()) != 0 {
		t.Error("failed lookup must not enqueue")
	}
}

func TestTrigger_InvalidPostID(t *testing.T) {
	repo := newFakeDeliveryRepo()
	sched := newFakeScheduler()
	trigger := NewTrigger(repo, &fakeGate{active: true}, sched)

	if err := trigger.HandlePostPublished(context.Background(), PublishEvent{PostID: 0}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(repo.records) != 0 {
		t.Error("invalid event must not create a record")
	}
}

func TestNewPublishEvent(t *testing.T) {
	a := NewPublishEvent(7, true)
	b := NewPublishEvent(7, false)

	if a.PostID != 7 {
		t.Errorf("unexpected post id: %d", a.PostID)
	}
	if !a.Created || b.Created {
		t.Errorf("created flag not carried: a=%v b=%v", a.Created, b.Created)
	}
	if a.GuardToken == "" {
		t.Error("expected a guard token")
	}
	if a.GuardToken == b.GuardToken {
		t.Error("guard tokens must be unique per event")
	}
}

func TestTrigger_EnqueueRejected(t *testing.T) {
	repo := newFakeDeliveryRepo()
	sched := newFakeScheduler()
	sched.enqueueErr = ErrQueueFull
	trigger := NewTrigger(repo, &fakeGate{active: true}, sched)

	// The rejection is absorbed; the record survives for the sweeper.
	if err := trigger.HandlePostPublished(context.Background(), NewPublishEvent(7, true)); err != nil {
		t.Fatalf("HandlePostPublished returned error: %v", err)
	}
	if repo.records[7] == nil {
		t.Fatal("record must exist even when the enqueue is rejected")
	}
}

func TestTrigger_RepublishRevivesRecordParkedWhileInactive(t *testing.T) {
	// Publish with the integration enabled, run the delivery after it was
	// disabled, then re-enable and republish. The parked record must be
	// picked up again instead of staying stuck.
	repo := newFakeDeliveryRepo()
	gate := &fakeGate{active: true}
	sched := newFakeScheduler()
	trigger := NewTrigger(repo, gate, sched)

	posts := &fakePostRepo{posts: map[int64]*entity.Post{7: publishedPost(7)}}
	client := &fakeClient{submitFn: func(_ context.Context, _ *entity.Post) (*platform.SubmitResult, error) {
		return &platform.SubmitResult{ExternalPostID: "ext-7"}, nil
	}}
	w := NewWorker(repo, posts, client, gate, NewBackoff(), WorkerConfig{SubmitTimeout: time.Second})

	if err := trigger.HandlePostPublished(context.Background(), NewPublishEvent(7, true)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	// The integration is disabled before the queued run executes.
	gate.active = false
	result, err := w.Deliver(context.Background(), 7)
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if result.Outcome != OutcomeSkippedInactive {
		t.Fatalf("expected %s, got %s", OutcomeSkippedInactive, result.Outcome)
	}
	if repo.records[7].Status != entity.DeliveryFailed {
		t.Fatalf("run while inactive must park the record, got %s", repo.records[7].Status)
	}

	gate.active = true
	if err := trigger.HandlePostPublished(context.Background(), NewPublishEvent(7, false)); err != nil {
		t.Fatalf("republish failed: %v", err)
	}
	if got := sched.enqueuedIDs(); len(got) != 2 || got[1] != 7 {
		t.Fatalf("republish must re-enqueue the parked record, got %v", got)
	}

	// The revived run delivers with the full budget.
	result, err = w.Deliver(context.Background(), 7)
	if err != nil {
		t.Fatalf("revived Deliver failed: %v", err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("expected %s, got %s", OutcomeSuccess, result.Outcome)
	}
	if result.Record.AttemptCount != 1 {
		t.Errorf("expected attempt_count=1 after revival, got %d", result.Record.AttemptCount)
	}
}
