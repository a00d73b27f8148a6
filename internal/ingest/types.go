// Package ingest defines core types shared across the orchestration subsystems.
package ingest

import (
	"time"
)

// Tier is the operational priority class of a source. Lower values run more
// frequently. TierNone marks a source that opted out of tier overrides and
// is scheduled purely by its declared cadence.
type Tier int

// Tier values. Tier 4 is the lowest priority and the loader default.
const (
	TierNone Tier = 0
	Tier1    Tier = 1
	Tier2    Tier = 2
	Tier3    Tier = 3
	Tier4    Tier = 4
)

// Cadence is the update frequency a source declares for itself.
type Cadence string

// Cadence values accepted from the source catalog.
const (
	CadenceContinuous Cadence = "continuous"
	CadenceDaily      Cadence = "daily"
	CadenceWeekly     Cadence = "weekly"
	CadenceMonthly    Cadence = "monthly"
	CadenceQuarterly  Cadence = "quarterly"
	CadenceAnnual     Cadence = "annual"
	CadenceIrregular  Cadence = "irregular"
)

// SourceStatus is the scheduling state of a source inside the engine.
type SourceStatus string

// Source status values. StatusFailed is only ever set after a timer
// registration error; run outcomes never change a source's status.
const (
	SourceStatusActive SourceStatus = "active"
	SourceStatusPaused SourceStatus = "paused"
	SourceStatusFailed SourceStatus = "failed"
)

// ScheduledSource is one catalog entry the engine holds a timer for.
// Expression is always recomputed from (Tier, Cadence); it is never
// persisted independently.
type ScheduledSource struct {
	SourceID   string       `json:"source_id"`
	Name       string       `json:"name"`
	Tier       Tier         `json:"tier"`
	Cadence    Cadence      `json:"cadence"`
	Connector  string       `json:"connector"`
	Expression string       `json:"schedule_expression"`
	Status     SourceStatus `json:"status"`
	LastRunAt  *time.Time   `json:"last_run_at,omitempty"`
	NextRunAt  *time.Time   `json:"next_run_at,omitempty"`
}

// RunStatus is the lifecycle state of one ingestion run.
type RunStatus string

// Run status values. A run transitions exactly once from running to a
// terminal state and is immutable afterwards.
const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// Terminal reports whether the status ends the run lifecycle.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusPartial || s == RunStatusFailed
}

// RunCounters tracks record-level outcomes of one ingestion attempt.
type RunCounters struct {
	RecordsFetched int `json:"records_fetched"`
	RecordsCreated int `json:"records_created"`
	RecordsUpdated int `json:"records_updated"`
	RecordsSkipped int `json:"records_skipped"`
}

// IngestionRun is the persisted record of one ingestion attempt.
type IngestionRun struct {
	ID              int64       `json:"id"`
	SourceID        string      `json:"source_id"`
	SourceName      string      `json:"source_name"`
	ConnectorName   string      `json:"connector_name"`
	Status          RunStatus   `json:"status"`
	StartedAt       time.Time   `json:"started_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	DurationSeconds int64       `json:"duration_seconds"`
	Counters        RunCounters `json:"counters"`
	ErrorMessage    string      `json:"error_message,omitempty"`
}

// RunOutcome carries the terminal state written when a run completes.
type RunOutcome struct {
	Status       RunStatus
	CompletedAt  time.Time
	Counters     RunCounters
	ErrorMessage string
}

// FetchResult is what a connector reports back after one fetch.
type FetchResult struct {
	RecordsFetched int
	RecordsCreated int
	RecordsUpdated int
	RecordsSkipped int
	Errors         []string
}

// Counters converts the fetch result into persisted run counters.
func (r FetchResult) Counters() RunCounters {
	return RunCounters{
		RecordsFetched: r.RecordsFetched,
		RecordsCreated: r.RecordsCreated,
		RecordsUpdated: r.RecordsUpdated,
		RecordsSkipped: r.RecordsSkipped,
	}
}

// EventKind is the webhook event derived from a terminal run status.
type EventKind string

// Webhook event kinds.
const (
	EventCompleted EventKind = "ingestion.completed"
	EventFailed    EventKind = "ingestion.failed"
	EventPartial   EventKind = "ingestion.partial"
)

// EventForStatus maps a terminal run status to its webhook event kind.
func EventForStatus(status RunStatus) EventKind {
	switch status {
	case RunStatusFailed:
		return EventFailed
	case RunStatusPartial:
		return EventPartial
	default:
		return EventCompleted
	}
}

// WebhookRegistration is one endpoint subscribed to run events.
type WebhookRegistration struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	URL          string      `json:"url"`
	Events       []EventKind `json:"events"`
	Active       bool        `json:"active"`
	FailureCount int         `json:"failure_count"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Subscribed reports whether the registration listens for the event kind.
func (w WebhookRegistration) Subscribed(kind EventKind) bool {
	for _, e := range w.Events {
		if e == kind {
			return true
		}
	}
	return false
}

// DataGap records a missed ingestion window caused by a failed run.
type DataGap struct {
	SourceID   string    `json:"source_id"`
	SourceName string    `json:"source_name"`
	RunID      int64     `json:"run_id"`
	Reason     string    `json:"reason"`
	DetectedAt time.Time `json:"detected_at"`
}

// Alert is the side-channel notification emitted for failed runs.
type Alert struct {
	SourceID   string    `json:"source_id"`
	SourceName string    `json:"source_name"`
	RunID      int64     `json:"run_id"`
	Message    string    `json:"message"`
	RaisedAt   time.Time `json:"raised_at"`
}
