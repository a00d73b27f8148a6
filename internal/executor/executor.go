// Package executor drives one ingestion run from timer fire to terminal
// state: overlap guard, connector fetch, status derivation, persistence,
// and webhook notification.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
	"github.com/JakeFAU/ingestion-orchestrator/internal/metrics"
)

// ErrRunInProgress is returned when a fire is skipped because the source
// already has a run in running state.
var ErrRunInProgress = errors.New("source already has an active run")

// Notifier delivers a terminal run snapshot to subscribed endpoints.
type Notifier interface {
	Dispatch(ctx context.Context, run ingest.IngestionRun) error
}

// ConnectorResolver maps a connector name to an implementation.
type ConnectorResolver interface {
	Resolve(name string) (ingest.Connector, error)
}

// Executor owns the run lifecycle for a single fire.
type Executor struct {
	runs       ingest.RunStore
	connectors ConnectorResolver
	notifier   Notifier
	clock      ingest.Clock
	logger     *zap.Logger
}

// NewExecutor constructs an Executor. The notifier may be nil, in which
// case terminal runs are persisted but not announced.
func NewExecutor(
	runs ingest.RunStore,
	connectors ConnectorResolver,
	notifier Notifier,
	clock ingest.Clock,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		runs:       runs,
		connectors: connectors,
		notifier:   notifier,
		clock:      clock,
		logger:     logger,
	}
}

// Execute performs one ingestion run for the source and returns the
// terminal run snapshot. A source with a run still in flight is skipped
// with ErrRunInProgress; no run row is created. Connector errors and
// panics terminate the run as failed, never the process.
func (e *Executor) Execute(ctx context.Context, source ingest.ScheduledSource) (ingest.IngestionRun, error) {
	active, err := e.runs.HasActiveRun(ctx, source.SourceID)
	if err != nil {
		return ingest.IngestionRun{}, fmt.Errorf("check active run: %w", err)
	}
	if active {
		metrics.IncFireSkipped()
		e.logger.Warn("skipping fire, run already in progress",
			zap.String("source_id", source.SourceID),
		)
		return ingest.IngestionRun{}, ErrRunInProgress
	}

	startedAt := e.clock.Now()
	run := ingest.IngestionRun{
		SourceID:      source.SourceID,
		SourceName:    source.Name,
		ConnectorName: source.Connector,
		Status:        ingest.RunStatusRunning,
		StartedAt:     startedAt,
	}
	run.ID, err = e.runs.CreateRun(ctx, run)
	if err != nil {
		return ingest.IngestionRun{}, fmt.Errorf("create run: %w", err)
	}

	e.logger.Info("ingestion run started",
		zap.Int64("run_id", run.ID),
		zap.String("source_id", source.SourceID),
		zap.String("connector", source.Connector),
	)

	result, fetchErr := e.fetch(ctx, source)
	outcome := deriveOutcome(result, fetchErr, e.clock.Now())

	applied, err := e.runs.CompleteRun(ctx, run.ID, outcome)
	if err != nil {
		return ingest.IngestionRun{}, fmt.Errorf("complete run %d: %w", run.ID, err)
	}
	if !applied {
		// The reaper won the race; its snapshot is the one that was announced.
		e.logger.Warn("run already terminal, outcome discarded",
			zap.Int64("run_id", run.ID),
			zap.String("source_id", source.SourceID),
		)
		return e.runs.GetRun(ctx, run.ID)
	}

	run.Status = outcome.Status
	run.CompletedAt = &outcome.CompletedAt
	run.DurationSeconds = int64(outcome.CompletedAt.Sub(startedAt) / time.Second)
	run.Counters = outcome.Counters
	run.ErrorMessage = outcome.ErrorMessage

	metrics.ObserveRun(string(run.Status), outcome.CompletedAt.Sub(startedAt))
	e.logger.Info("ingestion run finished",
		zap.Int64("run_id", run.ID),
		zap.String("source_id", source.SourceID),
		zap.String("status", string(run.Status)),
		zap.Int("records_fetched", run.Counters.RecordsFetched),
		zap.Int64("duration_seconds", run.DurationSeconds),
	)

	if e.notifier != nil {
		if err := e.notifier.Dispatch(ctx, run); err != nil {
			e.logger.Error("webhook dispatch failed",
				zap.Int64("run_id", run.ID),
				zap.Error(err),
			)
		}
	}

	return run, nil
}

// fetch resolves the connector and runs it, converting panics into errors
// so a misbehaving connector only fails its own run.
func (e *Executor) fetch(ctx context.Context, source ingest.ScheduledSource) (result ingest.FetchResult, err error) {
	conn, err := e.connectors.Resolve(source.Connector)
	if err != nil {
		return ingest.FetchResult{}, fmt.Errorf("resolve connector %q: %w", source.Connector, err)
	}

	defer func() {
		if r := recover(); r != nil {
			result = ingest.FetchResult{}
			err = fmt.Errorf("connector panic: %v", r)
		}
	}()
	return conn.Fetch(ctx, source.SourceID)
}

// deriveOutcome maps a fetch result to a terminal run outcome: success when
// nothing went wrong, partial when some records landed despite errors,
// failed otherwise.
func deriveOutcome(result ingest.FetchResult, fetchErr error, completedAt time.Time) ingest.RunOutcome {
	outcome := ingest.RunOutcome{
		CompletedAt: completedAt,
		Counters:    result.Counters(),
	}

	switch {
	case fetchErr != nil:
		outcome.Status = ingest.RunStatusFailed
		outcome.ErrorMessage = fetchErr.Error()
	case len(result.Errors) == 0:
		outcome.Status = ingest.RunStatusSuccess
	case result.RecordsFetched > 0:
		outcome.Status = ingest.RunStatusPartial
		outcome.ErrorMessage = strings.Join(result.Errors, "; ")
	default:
		outcome.Status = ingest.RunStatusFailed
		outcome.ErrorMessage = strings.Join(result.Errors, "; ")
	}
	return outcome
}
