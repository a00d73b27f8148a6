package ingest

import (
	"context"
	"time"
)

// Connector fetches data for one source. Implementations are opaque to the
// orchestration core: potentially slow, potentially failing.
type Connector interface {
	Fetch(ctx context.Context, sourceID string) (FetchResult, error)
}

// RunStore persists ingestion run rows. Terminal transitions are conditioned
// on the row still being in running state so the executor and the reaper
// cannot double-transition the same run.
type RunStore interface {
	// CreateRun inserts a run in running state and returns its ID.
	CreateRun(ctx context.Context, run IngestionRun) (int64, error)

	// CompleteRun applies a terminal outcome where status = running.
	// It returns false when the row was already terminal.
	CompleteRun(ctx context.Context, runID int64, outcome RunOutcome) (bool, error)

	// HasActiveRun reports whether the source has a run still in running state.
	HasActiveRun(ctx context.Context, sourceID string) (bool, error)

	// ListStuckRuns returns running runs started before the cutoff.
	ListStuckRuns(ctx context.Context, cutoff time.Time) ([]IngestionRun, error)

	// GetRun fetches one run by ID.
	GetRun(ctx context.Context, runID int64) (IngestionRun, error)

	// ListRecentRuns returns the newest runs, newest first.
	ListRecentRuns(ctx context.Context, limit int) ([]IngestionRun, error)
}

// WebhookStore persists webhook registrations.
type WebhookStore interface {
	CreateWebhook(ctx context.Context, reg WebhookRegistration) error
	ListWebhooks(ctx context.Context) ([]WebhookRegistration, error)
	ListActiveWebhooks(ctx context.Context, kind EventKind) ([]WebhookRegistration, error)
	DeleteWebhook(ctx context.Context, id string) error
	RecordWebhookFailure(ctx context.Context, id string) error
}

// GapStore records data gaps opened by failed runs.
type GapStore interface {
	RecordGap(ctx context.Context, gap DataGap) error
}

// Alerter pushes failure alerts to an operational side channel.
type Alerter interface {
	Alert(ctx context.Context, alert Alert) error
}

// CatalogLoader produces the normalized source catalog.
type CatalogLoader interface {
	Load() ([]ScheduledSource, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
