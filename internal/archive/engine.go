package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/flemzord/dbarchiver/internal/archive"

// Config holds the collaborators of an Archiver.
type Config struct {
	Source   Source
	Target   Target
	Logger   *slog.Logger
	Observer Observer    // optional
	Checker  HostChecker // optional; hosts are not checked when nil
	Tracer   trace.Tracer
}

// Archiver runs archival transfers between one source and one target.
// An Archiver is cheap; callers build a fresh one per run.
type Archiver struct {
	source   Source
	target   Target
	logger   *slog.Logger
	observer Observer
	checker  HostChecker
	tracer   trace.Tracer
}

// New creates an Archiver.
func New(cfg Config) *Archiver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(tracerName)
	}
	return &Archiver{
		source:   cfg.Source,
		target:   cfg.Target,
		logger:   logger,
		observer: cfg.Observer,
		checker:  cfg.Checker,
		tracer:   tracer,
	}
}

// Archive performs one transfer: check hosts, run the pre-script, then page
// through the source inserting every batch into the target and, when
// configured, deleting it from the source.
//
// Store calls are not interrupted by ctx; cancellation is observed between
// batches. The first failure aborts the run and is returned. Batches already
// committed stay committed.
func (a *Archiver) Archive(ctx context.Context, ts TransferSettings) (err error) {
	if a.source == nil || a.target == nil {
		return fmt.Errorf("%w: archiver requires a source and a target", ErrConfiguration)
	}
	if err := ts.Validate(); err != nil {
		a.logger.Error("archive: invalid transfer settings", "error", err)
		return err
	}

	ctx, span := a.tracer.Start(ctx, "archive.run", trace.WithAttributes(
		attribute.String("source.provider", ts.Source.Provider),
		attribute.String("target.provider", ts.Target.Provider),
		attribute.Int("batch_size", ts.Source.BatchSize),
		attribute.Bool("delete_after_archived", ts.Source.DeleteAfterArchived),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("archive: cancelled before start: %w", err)
		a.logger.Warn("archive: run not started", "error", err)
		return err
	}

	// In-flight store calls run to completion even if ctx is cancelled.
	storeCtx := context.WithoutCancel(ctx)

	if err := a.checkHosts(storeCtx, ts); err != nil {
		a.logger.Error("archive: host unreachable", "error", err)
		return err
	}

	if ts.HasPreScript() {
		if err := a.target.RunScript(storeCtx, ts.Target.Settings, ts.Target.PreScript); err != nil {
			err = classify(ErrScriptExecution, err)
			a.logger.Error("archive: pre-script failed", "error", err)
			return err
		}
		a.logger.Debug("archive: pre-script executed")
	}

	cursor, err := a.source.Cursor(storeCtx, ts.Source.Settings, ts.Source.BatchSize)
	if err != nil {
		err = fmt.Errorf("archive: open cursor: %w", err)
		a.logger.Error("archive: open cursor failed", "error", err)
		return err
	}
	defer func() {
		if cerr := cursor.Close(); cerr != nil {
			a.logger.Warn("archive: closing cursor", "error", cerr)
		}
	}()

	var batches, total int
	for {
		if err := ctx.Err(); err != nil {
			err = fmt.Errorf("archive: cancelled after %d batches: %w", batches, err)
			a.logger.Error("archive: run cancelled", "error", err)
			return err
		}

		ok, err := cursor.Next(storeCtx)
		if err != nil {
			err = fmt.Errorf("archive: fetch batch %d: %w", batches+1, err)
			a.logger.Error("archive: fetch failed", "error", err)
			return err
		}
		if !ok {
			break
		}

		batch := cursor.Batch()
		if err := a.transferBatch(ctx, storeCtx, ts, batch, batches+1); err != nil {
			a.logger.Error("archive: batch failed", "batch", batches+1, "error", err)
			return err
		}

		batches++
		total += len(batch)
		if a.observer != nil {
			a.observer.BatchArchived(len(batch))
		}
	}

	span.SetAttributes(attribute.Int("batches", batches), attribute.Int("records", total))
	a.logger.Info("archive: transfer complete", "batches", batches, "records", total)
	return nil
}

func (a *Archiver) transferBatch(ctx, storeCtx context.Context, ts TransferSettings, batch []Record, n int) error {
	_, span := a.tracer.Start(ctx, "archive.batch", trace.WithAttributes(
		attribute.Int("batch", n),
		attribute.Int("records", len(batch)),
	))
	defer span.End()

	if err := a.target.Insert(storeCtx, ts.Target.Settings, batch); err != nil {
		err = fmt.Errorf("archive: insert batch %d: %w", n, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if ts.Source.DeleteAfterArchived {
		if err := a.source.Delete(storeCtx, ts.Source.Settings, batch); err != nil {
			err = fmt.Errorf("archive: delete batch %d: %w", n, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	a.logger.Debug("archive: batch archived", "batch", n, "records", len(batch))
	return nil
}

func (a *Archiver) checkHosts(ctx context.Context, ts TransferSettings) error {
	if a.checker == nil {
		return nil
	}
	for _, host := range []string{ts.Source.Host, ts.Target.Host} {
		if host == "" {
			continue
		}
		if err := a.checker.Check(ctx, host); err != nil {
			return classify(ErrConnection, fmt.Errorf("host %q: %w", host, err))
		}
	}
	return nil
}

// classify attaches class to err unless err already carries it.
func classify(class, err error) error {
	if errors.Is(err, class) {
		return err
	}
	return fmt.Errorf("%w: %w", class, err)
}
