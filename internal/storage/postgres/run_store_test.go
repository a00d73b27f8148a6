package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
)

func TestCreateRunInsertsRunningRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock)
	require.NoError(t, err)

	started := time.Unix(1760000000, 0).UTC()
	run := ingest.IngestionRun{
		SourceID:      "WB-GDP",
		SourceName:    "World Bank GDP",
		ConnectorName: "world-bank",
		StartedAt:     started,
	}

	mock.ExpectQuery("INSERT INTO ingestion_runs").
		WithArgs("WB-GDP", "World Bank GDP", "world-bank", "running", started).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := store.CreateRun(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRunConditionedOnRunning(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock)
	require.NoError(t, err)

	completed := time.Unix(1760003600, 0).UTC()
	outcome := ingest.RunOutcome{
		Status:      ingest.RunStatusSuccess,
		CompletedAt: completed,
		Counters:    ingest.RunCounters{RecordsFetched: 120, RecordsCreated: 100},
	}

	mock.ExpectExec("UPDATE ingestion_runs").
		WithArgs(int64(42), "success", completed, 120, 100, 0, 0, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	applied, err := store.CompleteRun(context.Background(), 42, outcome)
	require.NoError(t, err)
	assert.True(t, applied)

	// The losing writer in a race affects zero rows and reports false.
	mock.ExpectExec("UPDATE ingestion_runs").
		WithArgs(int64(42), "failed", completed, 0, 0, 0, 0, "timeout").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	applied, err = store.CompleteRun(context.Background(), 42, ingest.RunOutcome{
		Status:       ingest.RunStatusFailed,
		CompletedAt:  completed,
		ErrorMessage: "timeout",
	})
	require.NoError(t, err)
	assert.False(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRunRejectsNonTerminal(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock)
	require.NoError(t, err)

	_, err = store.CompleteRun(context.Background(), 1, ingest.RunOutcome{Status: ingest.RunStatusRunning})
	require.Error(t, err)
}

func TestHasActiveRunQueriesBySource(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("WB-GDP").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	active, err := store.HasActiveRun(context.Background(), "WB-GDP")
	require.NoError(t, err)
	assert.True(t, active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListStuckRunsScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock)
	require.NoError(t, err)

	cutoff := time.Unix(1760000000, 0).UTC()
	started := cutoff.Add(-2 * time.Hour)

	cols := []string{
		"id", "source_id", "source_name", "connector_name", "status", "started_at",
		"completed_at", "duration_seconds", "records_fetched", "records_created",
		"records_updated", "records_skipped", "error_message",
	}
	mock.ExpectQuery("SELECT (.+) FROM ingestion_runs").
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(7), "ACLED", "ACLED Events", "acled", "running", started,
				(*time.Time)(nil), int64(0), 0, 0, 0, 0, ""))

	stuck, err := store.ListStuckRuns(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, int64(7), stuck[0].ID)
	assert.Equal(t, ingest.RunStatusRunning, stuck[0].Status)
	assert.Equal(t, started, stuck[0].StartedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
