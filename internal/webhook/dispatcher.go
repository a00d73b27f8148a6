package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
	"github.com/JakeFAU/ingestion-orchestrator/internal/metrics"
)

// Config controls delivery behavior.
type Config struct {
	// Timeout bounds each individual delivery attempt.
	Timeout time.Duration
	// MaxAttempts caps attempts per endpoint per event.
	MaxAttempts int
	// BackoffBase scales the exponential backoff; the wait after attempt n
	// is BackoffBase << n (2s, 4s, 8s at the 1s default).
	BackoffBase time.Duration
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
}

// Dispatcher fans completed-run events out to registered endpoints.
// Delivery is best-effort: failures are logged and counted, never escalated
// to the ingestion run itself.
type Dispatcher struct {
	store    ingest.WebhookStore
	alerter  ingest.Alerter
	gapStore ingest.GapStore
	client   *http.Client
	clock    ingest.Clock
	logger   *zap.Logger
	cfg      Config
}

// NewDispatcher constructs a Dispatcher. Alerter and gap store are optional;
// when nil the failure side channel is skipped.
func NewDispatcher(
	store ingest.WebhookStore,
	alerter ingest.Alerter,
	gapStore ingest.GapStore,
	clock ingest.Clock,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		store:    store,
		alerter:  alerter,
		gapStore: gapStore,
		client:   &http.Client{Timeout: cfg.Timeout},
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
	}
}

// Dispatch delivers the run's event to every active subscribed endpoint in
// parallel and waits for all deliveries (each attempt is individually
// bounded by the configured timeout). On a failed run it additionally
// raises the side-channel alert and records a data gap; both are
// best-effort and independent of delivery outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, run ingest.IngestionRun) error {
	payload := NewPayload(run, d.clock.Now())

	if payload.Event == ingest.EventFailed {
		d.raiseFailureSideChannel(ctx, run)
	}

	hooks, err := d.store.ListActiveWebhooks(ctx, payload.Event)
	if err != nil {
		return fmt.Errorf("list webhooks for %s: %w", payload.Event, err)
	}
	if len(hooks) == 0 {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var wg sync.WaitGroup
	for _, hook := range hooks {
		wg.Add(1)
		go func(hook ingest.WebhookRegistration) {
			defer wg.Done()
			d.deliverWithRetry(ctx, hook, payload.Event, body)
		}(hook)
	}
	wg.Wait()
	return nil
}

// ProcessBatchResults dispatches a list of run results sequentially. A
// failure on one item never aborts the remaining items.
func (d *Dispatcher) ProcessBatchResults(ctx context.Context, runs []ingest.IngestionRun) {
	for _, run := range runs {
		if err := d.Dispatch(ctx, run); err != nil {
			d.logger.Error("batch dispatch failed",
				zap.String("source_id", run.SourceID),
				zap.Int64("run_id", run.ID),
				zap.Error(err),
			)
		}
	}
}

// Test sends a synthetic payload to the URL once, without retry.
func (d *Dispatcher) Test(ctx context.Context, url string) error {
	payload := Payload{
		Event: ingest.EventCompleted,
		Result: Result{
			SourceID:   "TEST",
			SourceName: "Synthetic test source",
			Status:     string(ingest.RunStatusSuccess),
			Timestamp:  d.clock.Now(),
		},
		Timestamp: d.clock.Now(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal test payload: %w", err)
	}
	return d.send(ctx, url, body)
}

// deliverWithRetry attempts delivery up to MaxAttempts with exponential
// backoff. Exhausted deliveries are abandoned: surfaced via logs and the
// registration's failure counter only, never retried later.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, hook ingest.WebhookRegistration, event ingest.EventKind, body []byte) {
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		start := d.clock.Now()
		err := d.send(ctx, hook.URL, body)
		if err == nil {
			metrics.ObserveDelivery("delivered", time.Since(start))
			if attempt > 1 {
				d.logger.Info("webhook delivered after retry",
					zap.String("webhook", hook.Name),
					zap.Int("attempt", attempt),
				)
			}
			return
		}

		metrics.ObserveDelivery("failed", time.Since(start))
		d.logger.Warn("webhook delivery failed",
			zap.String("webhook", hook.Name),
			zap.String("url", hook.URL),
			zap.String("event", string(event)),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", d.cfg.MaxAttempts),
			zap.Error(err),
		)

		if attempt == d.cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(d.cfg.BackoffBase << attempt):
		case <-ctx.Done():
			return
		}
	}

	metrics.ObserveDelivery("exhausted", 0)
	if err := d.store.RecordWebhookFailure(ctx, hook.ID); err != nil {
		d.logger.Warn("record webhook failure", zap.String("webhook", hook.Name), zap.Error(err))
	}
}

func (d *Dispatcher) send(ctx context.Context, url string, body []byte) error {
	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Kind", KindHeader)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// raiseFailureSideChannel emits the alert and gap record for a failed run.
// Each step is independently best-effort; neither affects the other nor the
// webhook deliveries.
func (d *Dispatcher) raiseFailureSideChannel(ctx context.Context, run ingest.IngestionRun) {
	now := d.clock.Now()

	if d.alerter != nil {
		alert := ingest.Alert{
			SourceID:   run.SourceID,
			SourceName: run.SourceName,
			RunID:      run.ID,
			Message:    fmt.Sprintf("ingestion failed for %s: %s", run.SourceID, run.ErrorMessage),
			RaisedAt:   now,
		}
		if err := d.alerter.Alert(ctx, alert); err != nil {
			metrics.IncAlertFailure()
			d.logger.Warn("failure alert not delivered",
				zap.String("source_id", run.SourceID),
				zap.Error(err),
			)
		}
	}

	if d.gapStore != nil {
		gap := ingest.DataGap{
			SourceID:   run.SourceID,
			SourceName: run.SourceName,
			RunID:      run.ID,
			Reason:     run.ErrorMessage,
			DetectedAt: now,
		}
		if err := d.gapStore.RecordGap(ctx, gap); err != nil {
			d.logger.Warn("data gap not recorded",
				zap.String("source_id", run.SourceID),
				zap.Error(err),
			)
		}
	}
}
