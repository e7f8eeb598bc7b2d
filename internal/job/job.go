// Package job adapts archival transfers to the scheduler.
package job

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/dbarchiver/internal/archive"
	"github.com/flemzord/dbarchiver/internal/cron"
	"github.com/flemzord/dbarchiver/internal/metrics"
	"github.com/flemzord/dbarchiver/internal/provider"
)

// Options are the collaborators shared by every job.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Collector  // optional
	Tracer  trace.Tracer        // optional
	Checker archive.HostChecker // optional
}

// TransferJob runs one configured transfer each time it fires.
type TransferJob struct {
	item archive.Item
	opts Options
}

// Compile-time interface check.
var _ cron.Job = (*TransferJob)(nil)

// New creates a job for item.
func New(item archive.Item, opts Options) *TransferJob {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &TransferJob{item: item, opts: opts}
}

// Build creates one job per configured item, in configuration order.
func Build(c *archive.Configuration, opts Options) []*TransferJob {
	jobs := make([]*TransferJob, 0, len(c.Items))
	for _, it := range c.Items {
		jobs = append(jobs, New(it, opts))
	}
	return jobs
}

// Name implements cron.Job.
func (j *TransferJob) Name() string { return j.item.Schedule.Name }

// Schedule implements cron.Job.
func (j *TransferJob) Schedule() string { return j.item.Schedule.Cron }

// Transfer returns the job's transfer settings.
func (j *TransferJob) Transfer() archive.TransferSettings { return j.item.Transfer }

// Run builds fresh adapters and performs one archival transfer. The error
// is returned to the scheduler; nothing is retried.
func (j *TransferJob) Run(ctx context.Context) error {
	logger := j.opts.Logger.With("job", j.Name())
	ts := j.item.Transfer
	start := time.Now()

	err := j.run(ctx, logger, ts)
	if j.opts.Metrics != nil {
		j.opts.Metrics.RunFinished(j.Name(), time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("job %s: %w", j.Name(), err)
	}
	return nil
}

func (j *TransferJob) run(ctx context.Context, logger *slog.Logger, ts archive.TransferSettings) error {
	deps := provider.Deps{Logger: logger}
	src, err := provider.NewSource(ts.Source.Provider, deps)
	if err != nil {
		return err
	}
	defer closeAdapter(logger, src)
	tgt, err := provider.NewTarget(ts.Target.Provider, deps)
	if err != nil {
		return err
	}
	defer closeAdapter(logger, tgt)

	cfg := archive.Config{
		Source:  src,
		Target:  tgt,
		Logger:  logger,
		Checker: j.opts.Checker,
		Tracer:  j.opts.Tracer,
	}
	if j.opts.Metrics != nil {
		cfg.Observer = j.opts.Metrics.ForJob(j.Name())
	}

	logger.Info("job: archival started",
		"source", ts.Source.Provider,
		"target", ts.Target.Provider,
		"batch_size", ts.Source.BatchSize,
		"delete_after_archived", ts.Source.DeleteAfterArchived,
	)
	return archive.New(cfg).Archive(ctx, ts)
}

// closeAdapter releases the connection pools an adapter opened during the
// run. Adapters without pooled resources do not implement io.Closer.
func closeAdapter(logger *slog.Logger, adapter any) {
	c, ok := adapter.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn("job: closing adapter failed", "error", err)
	}
}
