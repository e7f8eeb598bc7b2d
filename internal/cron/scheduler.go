package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler manages periodic job execution using cron expressions.
// Each job is protected by a per-job mutex to prevent parallel execution
// of the same job (TryLock, so check and acquire are atomic). A tick that finds the
// previous run still in progress is skipped.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    []Job
	entries map[string]*entry
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// entry is the per-job bookkeeping.
type entry struct {
	job  Job
	lock sync.Mutex
	id   cron.EntryID

	statusMu sync.Mutex
	status   JobStatus
}

// JobStatus is a point-in-time view of a job.
type JobStatus struct {
	Name         string        `json:"name"`
	Schedule     string        `json:"schedule"`
	Running      bool          `json:"running"`
	Next         time.Time     `json:"next,omitzero"`
	LastRun      time.Time     `json:"last_run,omitzero"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
	Runs         int           `json:"runs"`
	Skipped      int           `json:"skipped"`
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Returns an error if a job with the same name is already registered.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}

	s.entries[name] = &entry{
		job:    j,
		status: JobStatus{Name: name, Schedule: j.Schedule()},
	}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start initializes the cron scheduler and begins executing registered jobs.
// Returns an error if any job has an invalid schedule expression.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("%w: already stopped", ErrNotRunning)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithParser(Parser))

	for _, j := range s.jobs {
		e := s.entries[j.Name()]
		id, err := c.AddFunc(j.Schedule(), func() {
			if err := s.run(ctx, e); errors.Is(err, ErrJobRunning) {
				s.logger.Warn("cron: job still running, skipping tick", "job", e.job.Name())
			}
		})
		if err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", j.Name(), err)
		}
		e.id = id
	}

	s.ctx, s.cancel, s.cron = ctx, cancel, c
	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs))
	return nil
}

// Trigger runs the named job immediately on a new goroutine, subject to the
// same overlap guard as scheduled ticks. It returns ErrUnknownJob,
// ErrNotRunning before Start or after Stop, or ErrJobRunning without
// starting anything.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	if s.ctx == nil || s.stopped {
		return fmt.Errorf("%w: cannot run %q", ErrNotRunning, name)
	}
	if !e.lock.TryLock() {
		return fmt.Errorf("%w: %q", ErrJobRunning, name)
	}

	// Added under s.mu so Stop, which sets stopped under the same lock,
	// never waits on a group that is still growing.
	s.wg.Add(1)
	ctx := s.ctx
	go func() {
		defer s.wg.Done()
		s.execute(ctx, e)
	}()
	return nil
}

// run executes e on the calling goroutine if it is not already running.
func (s *Scheduler) run(ctx context.Context, e *entry) error {
	// TryLock is atomic: no race between check and acquire.
	if !e.lock.TryLock() {
		e.statusMu.Lock()
		e.status.Skipped++
		e.statusMu.Unlock()
		return ErrJobRunning
	}
	s.execute(ctx, e)
	return nil
}

// execute runs the job. The caller must hold e.lock; execute releases it.
func (s *Scheduler) execute(ctx context.Context, e *entry) {
	defer e.lock.Unlock()

	name := e.job.Name()
	start := time.Now()

	e.statusMu.Lock()
	e.status.Running = true
	e.statusMu.Unlock()

	s.logger.Debug("cron: job started", "job", name)
	err := e.job.Run(ctx)
	elapsed := time.Since(start)

	e.statusMu.Lock()
	e.status.Running = false
	e.status.LastRun = start
	e.status.LastDuration = elapsed
	e.status.Runs++
	e.status.LastError = ""
	if err != nil {
		e.status.LastError = err.Error()
	}
	e.statusMu.Unlock()

	if err != nil {
		s.logger.Error("cron: job failed",
			"job", name,
			"duration", elapsed,
			"error", err,
		)
		return
	}
	s.logger.Debug("cron: job completed", "job", name, "duration", elapsed)
}

// Jobs returns the status of every registered job in registration order.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		e := s.entries[j.Name()]
		e.statusMu.Lock()
		st := e.status
		e.statusMu.Unlock()
		if s.cron != nil && !s.stopped && e.id != 0 {
			st.Next = s.cron.Entry(e.id).Next
		}
		out = append(out, st)
	}
	return out
}

// Stop gracefully shuts down the scheduler, waiting for in-flight jobs.
// In-flight jobs see a cancelled context and stop at their next batch
// boundary. A stopped scheduler cannot be started again. When ctx expires
// first the runs keep draining in the background.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	c := s.cron
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		// Wait for running jobs to complete.
		<-c.Stop().Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron: stop: %w", ctx.Err())
	}
}
