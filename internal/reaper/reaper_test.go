package reaper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
	"github.com/JakeFAU/ingestion-orchestrator/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func startRun(t *testing.T, store *memory.RunStore, sourceID string, startedAt time.Time) int64 {
	t.Helper()
	id, err := store.CreateRun(context.Background(), ingest.IngestionRun{
		SourceID:  sourceID,
		Status:    ingest.RunStatusRunning,
		StartedAt: startedAt,
	})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	return id
}

func TestCleanupStuckRuns(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewRunStore()

	stuckID := startRun(t, store, "WB-GDP", now.Add(-90*time.Minute))
	freshID := startRun(t, store, "FRED-CPI", now.Add(-10*time.Minute))

	r := NewReaper(store, fixedClock{now}, Config{StuckTimeout: time.Hour}, zap.NewNop())
	reaped, err := r.CleanupStuckRuns(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if reaped != 1 {
		t.Fatalf("reaped = %d, want 1", reaped)
	}

	stuck, err := store.GetRun(context.Background(), stuckID)
	if err != nil {
		t.Fatalf("get stuck run: %v", err)
	}
	if stuck.Status != ingest.RunStatusFailed {
		t.Fatalf("stuck run status = %s, want failed", stuck.Status)
	}
	want := "Timeout cleanup - run was stuck for 90 minutes"
	if stuck.ErrorMessage != want {
		t.Fatalf("error message = %q, want %q", stuck.ErrorMessage, want)
	}
	if stuck.CompletedAt == nil || !stuck.CompletedAt.Equal(now) {
		t.Fatalf("completed_at = %v, want %v", stuck.CompletedAt, now)
	}

	fresh, err := store.GetRun(context.Background(), freshID)
	if err != nil {
		t.Fatalf("get fresh run: %v", err)
	}
	if fresh.Status != ingest.RunStatusRunning {
		t.Fatalf("fresh run status = %s, want running", fresh.Status)
	}
}

func TestCleanupReleasesOverlapGuard(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewRunStore()
	startRun(t, store, "WB-GDP", now.Add(-2*time.Hour))

	r := NewReaper(store, fixedClock{now}, Config{}, zap.NewNop())
	if _, err := r.CleanupStuckRuns(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	active, err := store.HasActiveRun(context.Background(), "WB-GDP")
	if err != nil {
		t.Fatalf("has active run: %v", err)
	}
	if active {
		t.Fatal("source still reports an active run after reaping")
	}
}

// racingStore reports a run as stuck but completes it before the reaper's
// update lands, mimicking an executor finishing mid-sweep.
type racingStore struct {
	*memory.RunStore
	finished bool
}

func (s *racingStore) ListStuckRuns(ctx context.Context, cutoff time.Time) ([]ingest.IngestionRun, error) {
	runs, err := s.RunStore.ListStuckRuns(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		if _, err := s.RunStore.CompleteRun(ctx, run.ID, ingest.RunOutcome{
			Status:      ingest.RunStatusSuccess,
			CompletedAt: cutoff,
		}); err != nil {
			return nil, err
		}
		s.finished = true
	}
	return runs, nil
}

func TestCleanupSkipsRunsThatFinishMidSweep(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	inner := memory.NewRunStore()
	id := startRun(t, inner, "WB-GDP", now.Add(-3*time.Hour))
	store := &racingStore{RunStore: inner}

	r := NewReaper(store, fixedClock{now}, Config{}, zap.NewNop())
	reaped, err := r.CleanupStuckRuns(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if reaped != 0 {
		t.Fatalf("reaped = %d, want 0", reaped)
	}
	if !store.finished {
		t.Fatal("race was not exercised")
	}

	run, err := inner.GetRun(context.Background(), id)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != ingest.RunStatusSuccess {
		t.Fatalf("run status = %s, want success preserved", run.Status)
	}
}

func TestCleanupCountsMultipleStuckRuns(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewRunStore()
	for i := 0; i < 3; i++ {
		startRun(t, store, fmt.Sprintf("SRC-%d", i), now.Add(-time.Duration(i+2)*time.Hour))
	}

	r := NewReaper(store, fixedClock{now}, Config{}, zap.NewNop())
	reaped, err := r.CleanupStuckRuns(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if reaped != 3 {
		t.Fatalf("reaped = %d, want 3", reaped)
	}
}
