package alert

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
)

func TestLogAlerterRecords(t *testing.T) {
	t.Parallel()

	a := NewLogAlerter(zap.NewNop())
	err := a.Alert(context.Background(), ingest.Alert{
		SourceID: "WB-GDP",
		RunID:    4,
		Message:  "ingestion failed: upstream 503",
		RaisedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("alert: %v", err)
	}

	alerts := a.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].SourceID != "WB-GDP" || alerts[0].RunID != 4 {
		t.Fatalf("unexpected alert %+v", alerts[0])
	}
}
