package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
)

// GapStore collects data-gap records in memory.
type GapStore struct {
	mu   sync.RWMutex
	gaps []ingest.DataGap
}

// NewGapStore constructs a GapStore.
func NewGapStore() *GapStore {
	return &GapStore{}
}

// RecordGap appends a gap record.
func (s *GapStore) RecordGap(_ context.Context, gap ingest.DataGap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gaps = append(s.gaps, gap)
	return nil
}

// Gaps returns a copy of all recorded gaps.
func (s *GapStore) Gaps() []ingest.DataGap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.DataGap, len(s.gaps))
	copy(out, s.gaps)
	return out
}
