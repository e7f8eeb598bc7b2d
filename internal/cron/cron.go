// Package cron schedules archival jobs and guarantees that runs of the same
// job never overlap.
package cron

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
)

// Job defines a scheduled task.
type Job interface {
	// Name returns a unique identifier for this job (used for logging and dedup).
	Name() string

	// Schedule returns a cron expression accepted by Parser.
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}

// Parser accepts five-field expressions, six-field expressions with a
// leading seconds field, and descriptors such as @daily or @every 5m.
var Parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Sentinel errors for manual triggers.
var (
	ErrUnknownJob = errors.New("cron: unknown job")
	ErrJobRunning = errors.New("cron: job already running")
	ErrNotRunning = errors.New("cron: scheduler not running")
)
