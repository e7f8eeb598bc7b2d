// Package app provides the entry points shared by the dbarchiver commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flemzord/dbarchiver/internal/archive"
	"github.com/flemzord/dbarchiver/internal/config"
	"github.com/flemzord/dbarchiver/internal/core"
	"github.com/flemzord/dbarchiver/internal/cron"
	"github.com/flemzord/dbarchiver/internal/gateway"
	"github.com/flemzord/dbarchiver/internal/job"
	"github.com/flemzord/dbarchiver/internal/metrics"
	"github.com/flemzord/dbarchiver/internal/reach"
	"github.com/flemzord/dbarchiver/internal/reload"
	"github.com/flemzord/dbarchiver/internal/security"
	"github.com/flemzord/dbarchiver/internal/tracing"
)

const tracingShutdownTimeout = 10 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.ResolvePath picks one.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// LogOutput receives log records. Defaults to os.Stderr.
	LogOutput io.Writer

	// Stop ends Run when closed, in addition to SIGINT and SIGTERM. The OS
	// service wrapper uses it.
	Stop <-chan struct{}

	// PollInterval overrides how often the configuration file is checked
	// for changes.
	PollInterval time.Duration
}

// Runtime holds what is built from one configuration file.
type Runtime struct {
	ConfigPath string
	Config     *config.Config
	Jobs       *archive.Configuration
	Logger     *slog.Logger
	Redactor   *security.Redactor
	Metrics    *metrics.Collector
	Tracing    *tracing.Provider
}

// Load resolves and loads the configuration, binds every job and builds the
// logger, metrics collector and tracer provider. Nothing is scheduled.
func Load(ctx context.Context, params RunParams) (*Runtime, error) {
	cfgPath := config.ResolvePath(params.ConfigPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	jobs, err := config.Create(cfg)
	if err != nil {
		return nil, err
	}

	redactor := security.NewRedactor()
	redactor.SetLiterals(Secrets(cfg, jobs))

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger, err := security.NewLogger(out, cfg.Logging.Level, cfg.Logging.Format, redactor)
	if err != nil {
		return nil, err
	}

	tp, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
		Headers:     cfg.Tracing.Headers,
		SampleRatio: cfg.Tracing.SampleRatio,
		Version:     params.Version,
	}, logger.With("component", "tracing"))
	if err != nil {
		return nil, err
	}

	return &Runtime{
		ConfigPath: cfgPath,
		Config:     cfg,
		Jobs:       jobs,
		Logger:     logger,
		Redactor:   redactor,
		Metrics:    metrics.New(),
		Tracing:    tp,
	}, nil
}

// JobOptions returns the collaborators handed to every job.
func (rt *Runtime) JobOptions() job.Options {
	return job.Options{
		Logger:  rt.Logger,
		Metrics: rt.Metrics,
		Tracer:  rt.Tracing.Tracer(),
		Checker: reach.Checker{},
	}
}

// Secrets lists every credential of cfg that must never reach the logs:
// the bound job settings and the gateway credentials.
func Secrets(cfg *config.Config, jobs *archive.Configuration) []string {
	out := config.Secrets(jobs)
	if cfg.Gateway != nil {
		var gw gateway.Config
		if err := cfg.Gateway.Decode(&gw); err == nil {
			out = append(out, gw.Auth.Secrets()...)
		}
	}
	return out
}

// Run loads configuration, schedules every job, starts the optional
// modules and blocks until a shutdown signal is received. SIGHUP and
// file-change events reload the configuration.
func Run(params RunParams) error {
	rt, err := Load(context.Background(), params)
	if err != nil {
		return err
	}
	logger := rt.Logger

	runner, err := job.NewRunner(rt.Jobs, rt.JobOptions())
	if err != nil {
		return err
	}

	appCtx := core.NewAppContext(logger, rt.ConfigPath).WithModuleConfigs(rt.Config.ModuleConfigs())
	appCtx.RegisterService(gateway.ServiceJobs, runner)
	appCtx.RegisterService(gateway.ServiceMetrics, rt.Metrics)

	application := core.NewApp(appCtx)
	application.AppendModule(tracing.ModuleID, rt.Tracing)
	application.AppendModule(job.RunnerID, runner)

	handler := reload.NewHandler(reload.HandlerOptions{
		ConfigPath: rt.ConfigPath,
		Jobs:       runner,
		App:        application,
		Redactor:   rt.Redactor,
		Secrets:    Secrets,
		Logger:     logger,
	})
	appCtx.RegisterService(gateway.ServiceReloader, handler)

	if err := application.LoadModules(rt.Config.ModuleIDs()); err != nil {
		return err
	}
	if err := application.Start(); err != nil {
		return err
	}
	logger.Info("dbarchiver started",
		"version", params.Version,
		"config", rt.ConfigPath,
		"jobs", len(rt.Jobs.Items),
	)

	// --- signal handling ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	// --- file watcher ---
	watcher := reload.NewWatcher(reload.WatcherConfig{
		ConfigPath:   rt.ConfigPath,
		PollInterval: params.PollInterval,
	})
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	watcher.Start(watchCtx)
	defer watcher.Stop()

	// --- main event loop ---
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("SIGHUP received, reloading configuration")
				if err := handler.Reload(watchCtx); err != nil {
					logger.Error("reload failed, keeping current jobs", "error", err)
				}
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			return shutdown(application, logger)
		case <-params.Stop:
			logger.Info("stop requested")
			return shutdown(application, logger)
		case evt := <-watcher.Events():
			logger.Info("config file changed, reloading", "path", evt.ConfigPath)
			if err := handler.Reload(watchCtx); err != nil {
				logger.Error("reload failed, keeping current jobs", "error", err)
			}
		}
	}
}

func shutdown(application *core.App, logger *slog.Logger) error {
	application.Stop()
	logger.Info("shutdown complete")
	return nil
}

// RunOnce performs a single run of the named job and returns its error.
// SIGINT and SIGTERM cancel the run at the next batch boundary.
func RunOnce(params RunParams, name string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := Load(ctx, params)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		if err := rt.Tracing.Stop(sctx); err != nil {
			rt.Logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	item, ok := rt.Jobs.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q (configured: %v)", cron.ErrUnknownJob, name, config.JobNames(rt.Config))
	}

	start := time.Now()
	err = job.New(item, rt.JobOptions()).Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			rt.Logger.Warn("run interrupted", "job", name)
		}
		return err
	}
	rt.Logger.Info("run completed", "job", name, "duration", time.Since(start))
	return nil
}
