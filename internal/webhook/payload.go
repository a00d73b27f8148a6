// Package webhook turns completed ingestion runs into HTTP notifications
// delivered to registered endpoints with retry and backoff.
package webhook

import (
	"time"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
)

// KindHeader identifies orchestrator deliveries to receiving systems.
const KindHeader = "ingestion-result"

// Payload is the wire format POSTed to registered endpoints.
type Payload struct {
	Event     ingest.EventKind `json:"event"`
	Result    Result           `json:"result"`
	Timestamp time.Time        `json:"timestamp"`
}

// Result is the run snapshot embedded in a payload.
type Result struct {
	SourceID     string    `json:"sourceId"`
	SourceName   string    `json:"sourceName"`
	Status       string    `json:"status"`
	DataPoints   int       `json:"dataPoints"`
	Latency      int64     `json:"latency"`
	Timestamp    time.Time `json:"timestamp"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// NewPayload builds the payload for a terminal run snapshot.
func NewPayload(run ingest.IngestionRun, now time.Time) Payload {
	completed := run.StartedAt
	if run.CompletedAt != nil {
		completed = *run.CompletedAt
	}
	return Payload{
		Event: ingest.EventForStatus(run.Status),
		Result: Result{
			SourceID:     run.SourceID,
			SourceName:   run.SourceName,
			Status:       string(run.Status),
			DataPoints:   run.Counters.RecordsFetched,
			Latency:      run.DurationSeconds,
			Timestamp:    completed,
			ErrorMessage: run.ErrorMessage,
		},
		Timestamp: now,
	}
}
