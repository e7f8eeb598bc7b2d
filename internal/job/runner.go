package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flemzord/dbarchiver/internal/archive"
	"github.com/flemzord/dbarchiver/internal/core"
	"github.com/flemzord/dbarchiver/internal/cron"
)

// RunnerID is the module ID of the job runner. The runner is also
// published as a service under this name.
const RunnerID core.ModuleID = "jobs.runner"

// Runner owns the scheduler for the configured jobs and replaces it when
// the configuration is reloaded.
type Runner struct {
	opts Options

	mu      sync.Mutex
	sched   *cron.Scheduler
	started bool

	// settled is closed once the last swap has drained the schedule it
	// replaced and started its successor.
	settled chan struct{}
}

// Compile-time interface checks.
var (
	_ core.Module  = (*Runner)(nil)
	_ core.Starter = (*Runner)(nil)
	_ core.Stopper = (*Runner)(nil)
)

// NewRunner registers one job per item of c. Nothing runs until Start.
func NewRunner(c *archive.Configuration, opts Options) (*Runner, error) {
	sched, err := newScheduler(c, opts)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	settled := make(chan struct{})
	close(settled)
	return &Runner{opts: opts, sched: sched, settled: settled}, nil
}

func newScheduler(c *archive.Configuration, opts Options) (*cron.Scheduler, error) {
	s := cron.NewScheduler(opts.Logger)
	for _, j := range Build(c, opts) {
		if err := s.RegisterJob(j); err != nil {
			return nil, fmt.Errorf("job: %w", err)
		}
	}
	return s, nil
}

// ModuleInfo implements core.Module.
func (r *Runner) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  RunnerID,
		New: func() core.Module { return r },
	}
}

// Start begins scheduling.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.sched.Start(); err != nil {
		return err
	}
	r.started = true
	return nil
}

// Stop cancels in-flight runs and waits for them to reach a batch boundary,
// including runs of a schedule that a swap is still draining.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.started = false
	sched, settled := r.sched, r.settled
	r.mu.Unlock()

	if err := sched.Stop(ctx); err != nil {
		return err
	}
	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job: draining previous schedule: %w", ctx.Err())
	}
}

// Jobs returns the status of every scheduled job.
func (r *Runner) Jobs() []cron.JobStatus {
	r.mu.Lock()
	sched := r.sched
	r.mu.Unlock()
	return sched.Jobs()
}

// Trigger starts the named job now. It fails with cron.ErrUnknownJob or
// cron.ErrJobRunning.
func (r *Runner) Trigger(name string) error {
	r.mu.Lock()
	sched := r.sched
	r.mu.Unlock()
	return sched.Trigger(name)
}

// Swap replaces the scheduled jobs with those of c. If c cannot be
// scheduled the current jobs keep running. Otherwise the new jobs are
// visible at once and start firing once every run of the previous
// schedule has returned, so a job never overlaps with its previous
// incarnation. The drain does not depend on ctx: when ctx expires first,
// Swap returns and the new schedule starts in the background.
func (r *Runner) Swap(ctx context.Context, c *archive.Configuration) error {
	next, err := newScheduler(c, r.opts)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if !r.started {
		r.sched = next
		r.mu.Unlock()
		return nil
	}
	prev, waitFor := r.sched, r.settled
	settled := make(chan struct{})
	r.sched, r.settled = next, settled
	r.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		defer close(settled)
		done <- r.activate(prev, next, waitFor)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		r.opts.Logger.Warn("job: previous runs still draining, new schedule starts when they return",
			"error", ctx.Err())
		return nil
	}
}

// activate waits for earlier swaps and for prev to drain, then starts next
// unless the runner was stopped or swapped again meanwhile.
func (r *Runner) activate(prev, next *cron.Scheduler, waitFor <-chan struct{}) error {
	<-waitFor
	if err := prev.Stop(context.Background()); err != nil {
		return fmt.Errorf("job: draining previous schedule: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.sched != next {
		return nil
	}
	if err := next.Start(); err != nil {
		r.opts.Logger.Error("job: starting new schedule", "error", err)
		return err
	}
	return nil
}
