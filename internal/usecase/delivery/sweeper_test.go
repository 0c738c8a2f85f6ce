package delivery

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"postbridge/internal/domain/entity"
	"postbridge/internal/infra/platform"
)

func seedRetrying(repo *fakeDeliveryRepo, postID int64, due time.Time) {
	rec := entity.NewDeliveryRecord(postID)
	rec.Status = entity.DeliveryRetrying
	rec.AttemptCount = 1
	rec.ErrorCode = string(platform.KindServer)
	rec.ErrorMessage = "unavailable"
	rec.NextRetryAt = &due
	repo.put(rec)
}

func TestSweeper_EnqueuesDueRetries(t *testing.T) {
	repo := newFakeDeliveryRepo()
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	seedRetrying(repo, 1, past)
	seedRetrying(repo, 2, past)
	seedRetrying(repo, 3, future) // not due

	sched := newFakeScheduler()
	sweeper := NewSweeper(repo, sched, DefaultSweeperConfig())

	report, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if report.Checked != 2 {
		t.Errorf("expected 2 checked, got %d", report.Checked)
	}
	if report.Retried != 2 {
		t.Errorf("expected 2 retried, got %d", report.Retried)
	}

	got := sched.enqueuedIDs()
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("expected posts 1 and 2 enqueued, got %v", got)
	}
}

func TestSweeper_NothingDue(t *testing.T) {
	repo := newFakeDeliveryRepo()
	seedRetrying(repo, 1, time.Now().Add(time.Hour))

	sched := newFakeScheduler()
	sweeper := NewSweeper(repo, sched, DefaultSweeperConfig())

	report, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Checked != 0 || report.Retried != 0 {
		t.Errorf("expected empty report, got %+v", report)
	}
}

func TestSweeper_CountsRejectedEnqueues(t *testing.T) {
	repo := newFakeDeliveryRepo()
	seedRetrying(repo, 1, time.Now().Add(-time.Minute))

	sched := newFakeScheduler()
	sched.enqueueErr = ErrQueueFull
	sweeper := NewSweeper(repo, sched, DefaultSweeperConfig())

	report, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Checked != 1 {
		t.Errorf("expected 1 checked, got %d", report.Checked)
	}
	if report.Retried != 0 {
		t.Errorf("rejected enqueue must not count as retried, got %d", report.Retried)
	}
}

func TestSweeper_NeverMutatesRecords(t *testing.T) {
	repo := newFakeDeliveryRepo()
	seedRetrying(repo, 1, time.Now().Add(-time.Minute))

	sched := newFakeScheduler()
	sweeper := NewSweeper(repo, sched, DefaultSweeperConfig())

	if _, err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(repo.updates) != 0 {
		t.Errorf("sweeper must not write records, saw %d updates", len(repo.updates))
	}

	rec := repo.records[1]
	if rec.Status != entity.DeliveryRetrying {
		t.Errorf("record status changed to %s", rec.Status)
	}
}

func TestSweeper_RepoError(t *testing.T) {
	repo := newFakeDeliveryRepo()
	repo.listErr = errors.New("connection refused")

	sweeper := NewSweeper(repo, newFakeScheduler(), DefaultSweeperConfig())

	if _, err := sweeper.Sweep(context.Background()); err == nil {
		t.Fatal("expected repo error to propagate")
	}
}
