package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
)

// GapStore records data gaps in Postgres.
//
// Expected schema:
//
//	CREATE TABLE data_gaps (
//		id BIGSERIAL PRIMARY KEY,
//		source_id TEXT NOT NULL,
//		source_name TEXT NOT NULL,
//		run_id BIGINT NOT NULL,
//		reason TEXT NOT NULL,
//		detected_at TIMESTAMPTZ NOT NULL
//	);
type GapStore struct {
	pool dbConn
}

// NewGapStore constructs a GapStore from an existing pool.
func NewGapStore(pool dbConn) (*GapStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &GapStore{pool: pool}, nil
}

// RecordGap inserts a gap row.
func (s *GapStore) RecordGap(ctx context.Context, gap ingest.DataGap) error {
	const query = `
INSERT INTO data_gaps (source_id, source_name, run_id, reason, detected_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, query,
		gap.SourceID, gap.SourceName, gap.RunID, gap.Reason, gap.DetectedAt,
	); err != nil {
		return fmt.Errorf("insert data gap: %w", err)
	}
	return nil
}
