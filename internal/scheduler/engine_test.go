package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
	"github.com/JakeFAU/ingestion-orchestrator/internal/schedule"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type stubLoader struct {
	sources []ingest.ScheduledSource
	err     error
	loads   int
}

func (l *stubLoader) Load() ([]ingest.ScheduledSource, error) {
	l.loads++
	if l.err != nil {
		return nil, l.err
	}
	out := make([]ingest.ScheduledSource, len(l.sources))
	copy(out, l.sources)
	return out, nil
}

// fakeRegistry records registrations and lets tests fire timers by hand.
type fakeRegistry struct {
	mu       sync.Mutex
	next     schedule.Handle
	jobs     map[schedule.Handle]func()
	exprs    map[schedule.Handle]string
	failExpr string
	canceled int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		jobs:  make(map[schedule.Handle]func()),
		exprs: make(map[schedule.Handle]string),
	}
}

func (r *fakeRegistry) Register(expr string, fn func()) (schedule.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if expr == r.failExpr {
		return 0, errors.New("bad expression")
	}
	r.next++
	r.jobs[r.next] = fn
	r.exprs[r.next] = expr
	return r.next, nil
}

func (r *fakeRegistry) Cancel(h schedule.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[h]; ok {
		delete(r.jobs, h)
		delete(r.exprs, h)
		r.canceled++
	}
}

func (r *fakeRegistry) armed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// fireAll invokes every registered callback once, off the lock.
func (r *fakeRegistry) fireAll() {
	r.mu.Lock()
	fns := make([]func(), 0, len(r.jobs))
	for _, fn := range r.jobs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type stubRunner struct {
	mu       sync.Mutex
	executed []string
	err      error
}

func (r *stubRunner) Execute(_ context.Context, src ingest.ScheduledSource) (ingest.IngestionRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executed = append(r.executed, src.SourceID)
	return ingest.IngestionRun{ID: int64(len(r.executed)), SourceID: src.SourceID, StartedAt: time.Now().UTC()}, r.err
}

func (r *stubRunner) sources() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.executed))
	copy(out, r.executed)
	return out
}

// blockingRunner hangs inside Execute until released, standing in for a
// connector that never returns.
type blockingRunner struct {
	started chan struct{}
	release chan struct{}

	mu     sync.Mutex
	done   bool
	ctxErr error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) Execute(ctx context.Context, src ingest.ScheduledSource) (ingest.IngestionRun, error) {
	close(r.started)
	<-r.release
	r.mu.Lock()
	r.done = true
	r.ctxErr = ctx.Err()
	r.mu.Unlock()
	return ingest.IngestionRun{SourceID: src.SourceID, StartedAt: time.Now().UTC()}, nil
}

func (r *blockingRunner) finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *blockingRunner) contextErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctxErr
}

func catalog() []ingest.ScheduledSource {
	return []ingest.ScheduledSource{
		{SourceID: "WB-GDP", Name: "World Bank GDP", Tier: ingest.Tier1, Cadence: ingest.CadenceQuarterly, Connector: "world-bank", Status: ingest.SourceStatusActive},
		{SourceID: "FRED-CPI", Name: "FRED CPI", Tier: ingest.Tier2, Cadence: ingest.CadenceMonthly, Connector: "fred", Status: ingest.SourceStatusActive},
		{SourceID: "OLD-CENSUS", Name: "Census archive", Tier: ingest.Tier4, Cadence: ingest.CadenceAnnual, Connector: "census", Status: ingest.SourceStatusPaused},
	}
}

func newTestEngine(t *testing.T, reg *fakeRegistry, runner Runner) (*Engine, *stubLoader) {
	t.Helper()
	loader := &stubLoader{sources: catalog()}
	clock := fixedClock{time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	eng := NewEngine(loader, reg, runner, clock, Config{UpcomingLimit: 10}, zap.NewNop())
	require.NoError(t, eng.Initialize())
	return eng, loader
}

func TestInitializeResolvesExpressions(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, newFakeRegistry(), &stubRunner{})

	src, err := eng.Source("WB-GDP")
	require.NoError(t, err)
	// Tier 1 wins over the quarterly cadence.
	assert.Equal(t, "0 2 * * *", src.Expression)

	src, err = eng.Source("FRED-CPI")
	require.NoError(t, err)
	assert.Equal(t, "0 3 * * 1,4", src.Expression)
}

func TestInitializeIsIdempotent(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	eng, loader := newTestEngine(t, reg, &stubRunner{})
	require.NoError(t, eng.Start(context.Background()))
	require.Equal(t, 2, reg.armed())

	// Reinitialize while running: old timers disarmed, fresh ones armed.
	require.NoError(t, eng.Initialize())
	assert.Equal(t, 2, loader.loads)
	assert.Equal(t, 2, reg.armed())
	assert.Equal(t, 2, reg.canceled)
	assert.Equal(t, 3, eng.Status().TotalSources)
}

func TestStartArmsOnlyActiveSources(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	eng, _ := newTestEngine(t, reg, &stubRunner{})
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	assert.Equal(t, 2, reg.armed())

	paused, err := eng.Source("OLD-CENSUS")
	require.NoError(t, err)
	assert.Equal(t, ingest.SourceStatusPaused, paused.Status)
	assert.Nil(t, paused.NextRunAt)
}

func TestStartBeforeInitializeFails(t *testing.T) {
	t.Parallel()

	eng := NewEngine(&stubLoader{}, newFakeRegistry(), &stubRunner{}, fixedClock{time.Now()}, Config{}, zap.NewNop())
	require.ErrorIs(t, eng.Start(context.Background()), ErrNotInitialized)
}

func TestRegistrationFailureIsolatedToOneSource(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	reg.failExpr = "0 2 * * *" // WB-GDP's tier 1 slot
	eng, _ := newTestEngine(t, reg, &stubRunner{})
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	failed, err := eng.Source("WB-GDP")
	require.NoError(t, err)
	assert.Equal(t, ingest.SourceStatusFailed, failed.Status)

	healthy, err := eng.Source("FRED-CPI")
	require.NoError(t, err)
	assert.Equal(t, ingest.SourceStatusActive, healthy.Status)
	assert.Equal(t, 1, reg.armed())
}

func TestPauseResumeRoundTrip(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	eng, _ := newTestEngine(t, reg, &stubRunner{})
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	require.NoError(t, eng.PauseSource("WB-GDP"))
	src, err := eng.Source("WB-GDP")
	require.NoError(t, err)
	assert.Equal(t, ingest.SourceStatusPaused, src.Status)
	assert.Nil(t, src.NextRunAt)
	assert.Equal(t, 1, reg.armed())

	require.NoError(t, eng.ResumeSource("WB-GDP"))
	src, err = eng.Source("WB-GDP")
	require.NoError(t, err)
	assert.Equal(t, ingest.SourceStatusActive, src.Status)
	assert.Equal(t, "0 2 * * *", src.Expression, "expression survives the round trip")
	require.NotNil(t, src.NextRunAt)
	assert.Equal(t, 2, reg.armed())
}

func TestPauseUnknownSource(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, newFakeRegistry(), &stubRunner{})
	require.ErrorIs(t, eng.PauseSource("NOPE"), ErrUnknownSource)
	require.ErrorIs(t, eng.ResumeSource("NOPE"), ErrUnknownSource)
}

func TestStopDisarmsAndPreservesStatuses(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	eng, _ := newTestEngine(t, reg, &stubRunner{})
	require.NoError(t, eng.Start(context.Background()))
	require.NoError(t, eng.PauseSource("FRED-CPI"))

	eng.Stop()
	assert.Equal(t, 0, reg.armed())
	assert.False(t, eng.Status().Running)

	src, err := eng.Source("FRED-CPI")
	require.NoError(t, err)
	assert.Equal(t, ingest.SourceStatusPaused, src.Status, "stop leaves statuses alone")

	// Restart restores the active set only.
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()
	assert.Equal(t, 1, reg.armed())
}

func TestFireRoutesToRunner(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	runner := &stubRunner{}
	eng, _ := newTestEngine(t, reg, runner)
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	reg.fireAll()
	assert.Eventually(t, func() bool {
		return len(runner.sources()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"WB-GDP", "FRED-CPI"}, runner.sources())

	// last_run_at comes from the completed run, not the fire instant.
	assert.Eventually(t, func() bool {
		src, err := eng.Source("WB-GDP")
		return err == nil && src.LastRunAt != nil
	}, time.Second, 10*time.Millisecond)
}

func TestStopReturnsWhileRunInFlight(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	runner := newBlockingRunner()
	loader := &stubLoader{sources: []ingest.ScheduledSource{
		{SourceID: "WB-GDP", Name: "World Bank GDP", Tier: ingest.Tier1, Status: ingest.SourceStatusActive},
	}}
	eng := NewEngine(loader, reg, runner, fixedClock{time.Now().UTC()}, Config{}, zap.NewNop())
	require.NoError(t, eng.Initialize())
	require.NoError(t, eng.Start(context.Background()))

	reg.fireAll()
	<-runner.started

	stopped := make(chan struct{})
	go func() {
		eng.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a hung in-flight run")
	}
	assert.Equal(t, 0, reg.armed())
	assert.False(t, eng.Status().Running)

	// The in-flight run keeps going with its context intact.
	close(runner.release)
	assert.Eventually(t, runner.finished, time.Second, 10*time.Millisecond)
	assert.NoError(t, runner.contextErr())
}

func TestSkippedFireLeavesLastRunAlone(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	runner := &stubRunner{err: errors.New("source already has an active run")}
	eng, _ := newTestEngine(t, reg, runner)
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	reg.fireAll()
	assert.Eventually(t, func() bool {
		return len(runner.sources()) == 2
	}, time.Second, 10*time.Millisecond)

	src, err := eng.Source("WB-GDP")
	require.NoError(t, err)
	assert.Nil(t, src.LastRunAt, "a skipped fire must not advance last_run_at")
	assert.NotNil(t, src.NextRunAt, "the next occurrence is still recomputed at fire time")
}

func TestStatusReportsSoonestRunsFirst(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	eng, _ := newTestEngine(t, reg, &stubRunner{})
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	report := eng.Status()
	assert.True(t, report.Running)
	assert.Equal(t, 3, report.TotalSources)
	assert.Equal(t, 2, report.ActiveSources)
	require.Len(t, report.NextRuns, 2)

	// From midnight, the daily 02:00 slot precedes Monday 03:00.
	assert.Equal(t, "WB-GDP", report.NextRuns[0].SourceID)
	assert.True(t, report.NextRuns[0].NextRunAt.Before(report.NextRuns[1].NextRunAt))
}

func TestStatusHonorsUpcomingLimit(t *testing.T) {
	t.Parallel()

	sources := make([]ingest.ScheduledSource, 0, 8)
	for _, id := range []string{"A", "B", "C", "D", "E", "F", "G", "H"} {
		sources = append(sources, ingest.ScheduledSource{
			SourceID: id, Name: id, Tier: ingest.Tier1, Status: ingest.SourceStatusActive,
		})
	}
	loader := &stubLoader{sources: sources}
	eng := NewEngine(loader, newFakeRegistry(), &stubRunner{}, fixedClock{time.Now().UTC()}, Config{UpcomingLimit: 3}, zap.NewNop())
	require.NoError(t, eng.Initialize())
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	assert.Len(t, eng.Status().NextRuns, 3)
}

func TestRunNow(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{}
	eng, _ := newTestEngine(t, newFakeRegistry(), runner)

	run, err := eng.RunNow(context.Background(), "WB-GDP")
	require.NoError(t, err)
	assert.Equal(t, "WB-GDP", run.SourceID)
	assert.Equal(t, []string{"WB-GDP"}, runner.sources())

	_, err = eng.RunNow(context.Background(), "NOPE")
	require.ErrorIs(t, err, ErrUnknownSource)
}

func TestInitializeSurfacesLoaderError(t *testing.T) {
	t.Parallel()

	loader := &stubLoader{err: errors.New("catalog unreadable")}
	eng := NewEngine(loader, newFakeRegistry(), &stubRunner{}, fixedClock{time.Now()}, Config{}, zap.NewNop())
	require.Error(t, eng.Initialize())
}
