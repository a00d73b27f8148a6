package alert

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
)

// LogAlerter records alerts in memory and logs them. It stands in for the
// Pub/Sub side channel in tests and local runs.
type LogAlerter struct {
	mu     sync.Mutex
	alerts []ingest.Alert
	logger *zap.Logger
}

// NewLogAlerter constructs a LogAlerter.
func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

// Alert records the alert and logs it at warn level.
func (a *LogAlerter) Alert(_ context.Context, alert ingest.Alert) error {
	a.mu.Lock()
	a.alerts = append(a.alerts, alert)
	a.mu.Unlock()

	a.logger.Warn("ingestion alert",
		zap.String("source_id", alert.SourceID),
		zap.Int64("run_id", alert.RunID),
		zap.String("message", alert.Message),
	)
	return nil
}

// Alerts returns a copy of everything recorded so far.
func (a *LogAlerter) Alerts() []ingest.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ingest.Alert, len(a.alerts))
	copy(out, a.alerts)
	return out
}
