// Package scheduler owns the timer lifecycle for the source catalog: it
// loads sources, arms one recurring timer per active source, and hands
// fires to the run executor.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
	"github.com/JakeFAU/ingestion-orchestrator/internal/metrics"
	"github.com/JakeFAU/ingestion-orchestrator/internal/schedule"
)

// ErrUnknownSource is returned for operations on a source ID absent from
// the loaded catalog.
var ErrUnknownSource = errors.New("unknown source")

// ErrNotInitialized is returned when the engine is used before Initialize.
var ErrNotInitialized = errors.New("engine not initialized")

// Runner executes one ingestion run for a source.
type Runner interface {
	Execute(ctx context.Context, source ingest.ScheduledSource) (ingest.IngestionRun, error)
}

// Config bounds the engine's concurrency and status output.
type Config struct {
	// MaxConcurrentFires caps how many fires may execute at once. Extra
	// fires wait for a slot rather than being dropped.
	MaxConcurrentFires int
	// UpcomingLimit is how many next runs Status reports.
	UpcomingLimit int
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrentFires <= 0 {
		c.MaxConcurrentFires = 16
	}
	if c.UpcomingLimit <= 0 {
		c.UpcomingLimit = 10
	}
}

// UpcomingRun is one entry in the status report's next-run list.
type UpcomingRun struct {
	SourceID   string    `json:"source_id"`
	Name       string    `json:"name"`
	Expression string    `json:"schedule_expression"`
	NextRunAt  time.Time `json:"next_run_at"`
}

// StatusReport is the engine's operational snapshot.
type StatusReport struct {
	Running       bool          `json:"running"`
	TotalSources  int           `json:"total_sources"`
	ActiveSources int           `json:"active_sources"`
	NextRuns      []UpcomingRun `json:"next_runs"`
}

type sourceState struct {
	source ingest.ScheduledSource
	handle schedule.Handle
	armed  bool
}

// Engine arms and disarms timers for catalog sources and routes fires to
// the runner. All state transitions hold the engine mutex; fires execute
// outside it.
type Engine struct {
	loader   ingest.CatalogLoader
	registry schedule.Registry
	runner   Runner
	clock    ingest.Clock
	logger   *zap.Logger
	cfg      Config

	mu          sync.Mutex
	sources     map[string]*sourceState
	running     bool
	initialized bool

	fireCtx context.Context
	sem     chan struct{}
}

// NewEngine constructs an Engine. Call Initialize before Start.
func NewEngine(
	loader ingest.CatalogLoader,
	registry schedule.Registry,
	runner Runner,
	clock ingest.Clock,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	cfg.applyDefaults()
	return &Engine{
		loader:   loader,
		registry: registry,
		runner:   runner,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
		sources:  make(map[string]*sourceState),
		sem:      make(chan struct{}, cfg.MaxConcurrentFires),
	}
}

// Initialize loads the catalog and resolves each source's schedule
// expression. Safe to call again: existing timers are disarmed and the
// catalog is reloaded from scratch. A running engine stays running, with
// timers re-armed for the fresh catalog.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	loaded, err := e.loader.Load()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	e.disarmAllLocked()
	e.sources = make(map[string]*sourceState, len(loaded))
	for _, src := range loaded {
		src.Expression = schedule.Resolve(src.Tier, src.Cadence)
		e.sources[src.SourceID] = &sourceState{source: src}
	}
	e.initialized = true

	e.logger.Info("catalog initialized", zap.Int("sources", len(loaded)))

	if e.running {
		e.armAllLocked()
	}
	return nil
}

// Start arms a timer for every active source. A registration failure marks
// that source failed and moves on; it never aborts the remaining sources.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return ErrNotInitialized
	}
	if e.running {
		return nil
	}

	e.fireCtx = ctx
	e.running = true
	e.armAllLocked()

	e.logger.Info("scheduler started",
		zap.Int("sources", len(e.sources)),
		zap.Int("max_concurrent_fires", e.cfg.MaxConcurrentFires),
	)
	return nil
}

// Stop disarms every timer and returns without waiting for in-flight
// fires: a hung run is the reaper's problem, not Stop's. In-flight runs
// keep the context they were handed at Start, so only process shutdown
// cancels them. Source statuses are left untouched so Start restores the
// same set.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}
	e.running = false
	e.disarmAllLocked()
	e.logger.Info("scheduler stopped")
}

// PauseSource disarms the source's timer and marks it paused.
func (e *Engine) PauseSource(sourceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.sources[sourceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}

	e.disarmLocked(state)
	state.source.Status = ingest.SourceStatusPaused
	state.source.NextRunAt = nil
	e.updateTimerGaugeLocked()

	e.logger.Info("source paused", zap.String("source_id", sourceID))
	return nil
}

// ResumeSource re-arms a paused or failed source. The schedule expression
// is the one resolved at initialization; resuming never changes it.
func (e *Engine) ResumeSource(sourceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.sources[sourceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}

	state.source.Status = ingest.SourceStatusActive
	if e.running {
		e.armLocked(state)
		e.updateTimerGaugeLocked()
		if state.source.Status == ingest.SourceStatusFailed {
			return fmt.Errorf("resume %s: timer registration failed", sourceID)
		}
	}

	e.logger.Info("source resumed", zap.String("source_id", sourceID))
	return nil
}

// RunNow executes one run for the source immediately, outside its
// schedule. The executor's overlap guard still applies.
func (e *Engine) RunNow(ctx context.Context, sourceID string) (ingest.IngestionRun, error) {
	e.mu.Lock()
	state, ok := e.sources[sourceID]
	if !ok {
		e.mu.Unlock()
		return ingest.IngestionRun{}, fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}
	src := state.source
	e.mu.Unlock()

	run, err := e.runner.Execute(ctx, src)
	if err != nil {
		return ingest.IngestionRun{}, err
	}

	e.mu.Lock()
	if state, ok := e.sources[sourceID]; ok {
		started := run.StartedAt
		state.source.LastRunAt = &started
	}
	e.mu.Unlock()
	return run, nil
}

// Source returns the current snapshot of one catalog entry.
func (e *Engine) Source(sourceID string) (ingest.ScheduledSource, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.sources[sourceID]
	if !ok {
		return ingest.ScheduledSource{}, fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}
	return state.source, nil
}

// Sources returns every catalog entry ordered by source ID.
func (e *Engine) Sources() []ingest.ScheduledSource {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]ingest.ScheduledSource, 0, len(e.sources))
	for _, state := range e.sources {
		out = append(out, state.source)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Status reports source counts and the soonest upcoming runs, soonest
// first, capped at the configured limit.
func (e *Engine) Status() StatusReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := StatusReport{
		Running:      e.running,
		TotalSources: len(e.sources),
	}

	upcoming := make([]UpcomingRun, 0, len(e.sources))
	for _, state := range e.sources {
		if state.source.Status == ingest.SourceStatusActive {
			report.ActiveSources++
		}
		if state.source.NextRunAt == nil {
			continue
		}
		upcoming = append(upcoming, UpcomingRun{
			SourceID:   state.source.SourceID,
			Name:       state.source.Name,
			Expression: state.source.Expression,
			NextRunAt:  *state.source.NextRunAt,
		})
	}
	sort.Slice(upcoming, func(i, j int) bool {
		return upcoming[i].NextRunAt.Before(upcoming[j].NextRunAt)
	})
	if len(upcoming) > e.cfg.UpcomingLimit {
		upcoming = upcoming[:e.cfg.UpcomingLimit]
	}
	report.NextRuns = upcoming
	return report
}

// armAllLocked registers timers for every active source.
func (e *Engine) armAllLocked() {
	for _, state := range e.sources {
		if state.source.Status == ingest.SourceStatusActive {
			e.armLocked(state)
		}
	}
	e.updateTimerGaugeLocked()
}

// armLocked registers the source's timer. On registry failure the source
// is marked failed; other sources are unaffected.
func (e *Engine) armLocked(state *sourceState) {
	if state.armed {
		return
	}

	sourceID := state.source.SourceID
	handle, err := e.registry.Register(state.source.Expression, func() {
		e.fire(sourceID)
	})
	if err != nil {
		state.source.Status = ingest.SourceStatusFailed
		state.source.NextRunAt = nil
		e.logger.Error("failed to arm source timer",
			zap.String("source_id", sourceID),
			zap.String("expression", state.source.Expression),
			zap.Error(err),
		)
		return
	}

	state.handle = handle
	state.armed = true
	e.refreshNextRunLocked(state)
}

func (e *Engine) disarmAllLocked() {
	for _, state := range e.sources {
		e.disarmLocked(state)
	}
	e.updateTimerGaugeLocked()
}

func (e *Engine) disarmLocked(state *sourceState) {
	if !state.armed {
		return
	}
	e.registry.Cancel(state.handle)
	state.armed = false
	state.source.NextRunAt = nil
}

// refreshNextRunLocked recomputes next_run_at from the expression so the
// status report never depends on timer library internals.
func (e *Engine) refreshNextRunLocked(state *sourceState) {
	next, err := schedule.NextAfter(state.source.Expression, e.clock.Now())
	if err != nil {
		state.source.NextRunAt = nil
		return
	}
	state.source.NextRunAt = &next
}

func (e *Engine) updateTimerGaugeLocked() {
	armed := 0
	for _, state := range e.sources {
		if state.armed {
			armed++
		}
	}
	metrics.SetActiveTimers(armed)
}

// fire is the timer callback. It must not block the registry's scheduling
// goroutine, so the run executes on its own goroutine behind the
// concurrency semaphore.
func (e *Engine) fire(sourceID string) {
	e.mu.Lock()
	state, ok := e.sources[sourceID]
	if !ok || !e.running {
		e.mu.Unlock()
		return
	}
	src := state.source
	e.refreshNextRunLocked(state)
	ctx := e.fireCtx
	e.mu.Unlock()

	go func() {
		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-e.sem }()
		if ctx.Err() != nil {
			return
		}

		run, err := e.runner.Execute(ctx, src)
		if err != nil {
			// Includes skipped fires: those must not advance last_run_at.
			e.logger.Warn("scheduled run did not complete",
				zap.String("source_id", sourceID),
				zap.Error(err),
			)
			return
		}

		e.mu.Lock()
		if state, ok := e.sources[sourceID]; ok {
			started := run.StartedAt
			state.source.LastRunAt = &started
		}
		e.mu.Unlock()
	}()
}
