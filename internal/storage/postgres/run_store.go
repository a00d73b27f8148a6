package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
)

// RunStore persists ingestion runs in Postgres.
//
// Expected schema:
//
//	CREATE TABLE ingestion_runs (
//		id BIGSERIAL PRIMARY KEY,
//		source_id TEXT NOT NULL,
//		source_name TEXT NOT NULL,
//		connector_name TEXT NOT NULL,
//		status TEXT NOT NULL,
//		started_at TIMESTAMPTZ NOT NULL,
//		completed_at TIMESTAMPTZ,
//		duration_seconds BIGINT NOT NULL DEFAULT 0,
//		records_fetched INT NOT NULL DEFAULT 0,
//		records_created INT NOT NULL DEFAULT 0,
//		records_updated INT NOT NULL DEFAULT 0,
//		records_skipped INT NOT NULL DEFAULT 0,
//		error_message TEXT NOT NULL DEFAULT ''
//	);
type RunStore struct {
	pool dbConn
}

// NewRunStore constructs a RunStore from an existing pool.
func NewRunStore(pool dbConn) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const runColumns = `id, source_id, source_name, connector_name, status, started_at,
completed_at, duration_seconds, records_fetched, records_created, records_updated,
records_skipped, error_message`

// CreateRun inserts a run in running state and returns its ID.
func (s *RunStore) CreateRun(ctx context.Context, run ingest.IngestionRun) (int64, error) {
	const query = `
INSERT INTO ingestion_runs (
	source_id, source_name, connector_name, status, started_at
) VALUES ($1, $2, $3, $4, $5)
RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		run.SourceID,
		run.SourceName,
		run.ConnectorName,
		string(ingest.RunStatusRunning),
		run.StartedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// CompleteRun applies a terminal outcome conditioned on the row still being
// in running state. A false return means a competing writer got there first
// and this update was a no-op.
func (s *RunStore) CompleteRun(ctx context.Context, runID int64, outcome ingest.RunOutcome) (bool, error) {
	if !outcome.Status.Terminal() {
		return false, errors.New("outcome status must be terminal")
	}
	const query = `
UPDATE ingestion_runs SET
	status = $2,
	completed_at = $3,
	duration_seconds = EXTRACT(EPOCH FROM ($3 - started_at))::BIGINT,
	records_fetched = $4,
	records_created = $5,
	records_updated = $6,
	records_skipped = $7,
	error_message = $8
WHERE id = $1 AND status = 'running'`

	tag, err := s.pool.Exec(ctx, query,
		runID,
		string(outcome.Status),
		outcome.CompletedAt,
		outcome.Counters.RecordsFetched,
		outcome.Counters.RecordsCreated,
		outcome.Counters.RecordsUpdated,
		outcome.Counters.RecordsSkipped,
		outcome.ErrorMessage,
	)
	if err != nil {
		return false, fmt.Errorf("complete run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// HasActiveRun reports whether the source has a run still in running state.
func (s *RunStore) HasActiveRun(ctx context.Context, sourceID string) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM ingestion_runs WHERE source_id = $1 AND status = 'running'
)`
	var active bool
	if err := s.pool.QueryRow(ctx, query, sourceID).Scan(&active); err != nil {
		return false, fmt.Errorf("check active run: %w", err)
	}
	return active, nil
}

// ListStuckRuns returns running runs started before the cutoff.
func (s *RunStore) ListStuckRuns(ctx context.Context, cutoff time.Time) ([]ingest.IngestionRun, error) {
	query := `SELECT ` + runColumns + `
FROM ingestion_runs
WHERE status = 'running' AND started_at < $1
ORDER BY id`

	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stuck runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// GetRun fetches one run by ID.
func (s *RunStore) GetRun(ctx context.Context, runID int64) (ingest.IngestionRun, error) {
	query := `SELECT ` + runColumns + ` FROM ingestion_runs WHERE id = $1`
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		return ingest.IngestionRun{}, fmt.Errorf("get run %d: %w", runID, err)
	}
	return run, nil
}

// ListRecentRuns returns the newest runs, newest first.
func (s *RunStore) ListRecentRuns(ctx context.Context, limit int) ([]ingest.IngestionRun, error) {
	query := `SELECT ` + runColumns + ` FROM ingestion_runs ORDER BY id DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

func scanRuns(rows pgx.Rows) ([]ingest.IngestionRun, error) {
	var runs []ingest.IngestionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (ingest.IngestionRun, error) {
	var (
		run    ingest.IngestionRun
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.SourceID,
		&run.SourceName,
		&run.ConnectorName,
		&status,
		&run.StartedAt,
		&run.CompletedAt,
		&run.DurationSeconds,
		&run.Counters.RecordsFetched,
		&run.Counters.RecordsCreated,
		&run.Counters.RecordsUpdated,
		&run.Counters.RecordsSkipped,
		&run.ErrorMessage,
	)
	if err != nil {
		return ingest.IngestionRun{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = ingest.RunStatus(status)
	return run, nil
}
