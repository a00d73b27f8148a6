// Package memory provides in-memory store implementations for development
// and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// RunStore keeps ingestion runs in memory. Terminal transitions use the
// same running-conditioned semantics as the Postgres store so executor and
// reaper races behave identically in tests.
type RunStore struct {
	mu     sync.RWMutex
	nextID int64
	runs   map[int64]ingest.IngestionRun
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[int64]ingest.IngestionRun)}
}

// CreateRun inserts a run in running state and returns its ID.
func (s *RunStore) CreateRun(_ context.Context, run ingest.IngestionRun) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	run.ID = s.nextID
	run.Status = ingest.RunStatusRunning
	s.runs[run.ID] = run
	return run.ID, nil
}

// CompleteRun applies a terminal outcome if the run is still running.
func (s *RunStore) CompleteRun(_ context.Context, runID int64, outcome ingest.RunOutcome) (bool, error) {
	if !outcome.Status.Terminal() {
		return false, errors.New("outcome status must be terminal")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return false, ErrRunNotFound
	}
	if run.Status != ingest.RunStatusRunning {
		// Already terminal; the competing writer won.
		return false, nil
	}
	completed := outcome.CompletedAt
	run.Status = outcome.Status
	run.CompletedAt = &completed
	run.DurationSeconds = int64(completed.Sub(run.StartedAt).Seconds())
	run.Counters = outcome.Counters
	run.ErrorMessage = outcome.ErrorMessage
	s.runs[runID] = run
	return true, nil
}

// HasActiveRun reports whether the source has a run still in running state.
func (s *RunStore) HasActiveRun(_ context.Context, sourceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, run := range s.runs {
		if run.SourceID == sourceID && run.Status == ingest.RunStatusRunning {
			return true, nil
		}
	}
	return false, nil
}

// ListStuckRuns returns running runs started before the cutoff.
func (s *RunStore) ListStuckRuns(_ context.Context, cutoff time.Time) ([]ingest.IngestionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stuck []ingest.IngestionRun
	for _, run := range s.runs {
		if run.Status == ingest.RunStatusRunning && run.StartedAt.Before(cutoff) {
			stuck = append(stuck, run)
		}
	}
	sort.Slice(stuck, func(i, j int) bool { return stuck[i].ID < stuck[j].ID })
	return stuck, nil
}

// GetRun fetches one run by ID.
func (s *RunStore) GetRun(_ context.Context, runID int64) (ingest.IngestionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return ingest.IngestionRun{}, ErrRunNotFound
	}
	return run, nil
}

// ListRecentRuns returns the newest runs, newest first.
func (s *RunStore) ListRecentRuns(_ context.Context, limit int) ([]ingest.IngestionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]ingest.IngestionRun, 0, len(s.runs))
	for _, run := range s.runs {
		all = append(all, run)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
