package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Handle identifies one registered timer.
type Handle int

// Registry abstracts the timer mechanism the engine registers callbacks
// with, so the concrete implementation (cron library, native timers, a job
// queue) stays swappable.
type Registry interface {
	// Register arms a recurring timer for the expression. The callback runs
	// on the registry's scheduling goroutine; callers must not block in it.
	Register(expr string, fn func()) (Handle, error)

	// Cancel disarms the timer. Canceling an unknown handle is a no-op.
	Cancel(h Handle)
}

// NextAfter computes the first fire time of the expression after t,
// independently of any registry state. The engine uses it to report
// next_run_at even when the timer mechanism cannot.
func NextAfter(expr string, t time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return sched.Next(t), nil
}

// CronRegistry implements Registry on top of robfig/cron.
type CronRegistry struct {
	cron *cron.Cron
}

// NewCronRegistry builds a registry running in UTC and starts its
// scheduling loop.
func NewCronRegistry() *CronRegistry {
	c := cron.New(cron.WithLocation(time.UTC))
	c.Start()
	return &CronRegistry{cron: c}
}

// Register adds a recurring job for the cron expression.
func (r *CronRegistry) Register(expr string, fn func()) (Handle, error) {
	id, err := r.cron.AddFunc(expr, fn)
	if err != nil {
		return 0, fmt.Errorf("register schedule %q: %w", expr, err)
	}
	return Handle(id), nil
}

// Cancel removes a previously registered job.
func (r *CronRegistry) Cancel(h Handle) {
	r.cron.Remove(cron.EntryID(h))
}

// Close stops the scheduling loop without waiting for running jobs.
func (r *CronRegistry) Close() {
	r.cron.Stop()
}
