package reload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flemzord/dbarchiver/internal/archive"
	"github.com/flemzord/dbarchiver/internal/config"
	"github.com/flemzord/dbarchiver/internal/core"
	"github.com/flemzord/dbarchiver/internal/security"
)

// JobSwapper replaces the scheduled job set.
type JobSwapper interface {
	Swap(ctx context.Context, c *archive.Configuration) error
}

// HandlerOptions are the collaborators of a Handler. App, Redactor and
// Secrets are optional.
type HandlerOptions struct {
	ConfigPath string
	Jobs       JobSwapper
	App        *core.App
	Redactor   *security.Redactor
	// Secrets lists the literals to redact once the new configuration is
	// in force. Defaults to the credentials of the bound job settings.
	Secrets func(*config.Config, *archive.Configuration) []string
	Logger  *slog.Logger
}

// Handler applies a changed configuration file to the running process.
// Reloads are serialized.
type Handler struct {
	opts HandlerOptions
	mu   sync.Mutex
}

// NewHandler creates a reload handler.
func NewHandler(opts HandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Secrets == nil {
		opts.Secrets = func(_ *config.Config, c *archive.Configuration) []string {
			return config.Secrets(c)
		}
	}
	return &Handler{opts: opts}
}

// Reload re-reads the configuration file the handler was created with.
func (h *Handler) Reload(ctx context.Context) error {
	return h.HandleReload(ctx, h.opts.ConfigPath)
}

// HandleReload loads the configuration at configPath, binds every job and
// only then swaps the schedule. Any failure before the swap leaves the
// running jobs untouched.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c, err := config.Create(cfg)
	if err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.apply(ctx, cfg, c)
}

// HandleReloadFromConfig applies a configuration that has already been
// loaded and bound by config.Create.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config, c *archive.Configuration) error {
	return h.apply(ctx, cfg, c)
}

func (h *Handler) apply(ctx context.Context, cfg *config.Config, c *archive.Configuration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// New credentials are redacted before the new jobs can log them. The
	// previous ones stay until the old jobs have drained.
	secrets := h.opts.Secrets(cfg, c)
	if h.opts.Redactor != nil {
		for _, s := range secrets {
			h.opts.Redactor.AddLiteral(s)
		}
	}

	if h.opts.Jobs != nil {
		if err := h.opts.Jobs.Swap(ctx, c); err != nil {
			return fmt.Errorf("swapping jobs: %w", err)
		}
	}
	if h.opts.Redactor != nil {
		h.opts.Redactor.SetLiterals(secrets)
	}

	if h.opts.App != nil {
		appCtx := core.NewAppContext(h.opts.Logger, h.opts.ConfigPath).
			WithModuleConfigs(cfg.ModuleConfigs())
		if err := h.opts.App.ReloadModules(appCtx); err != nil {
			return fmt.Errorf("reloading modules: %w", err)
		}
	}

	h.opts.Logger.Info("configuration reloaded", "jobs", len(c.Items))
	return nil
}
