// Package gateway provides an HTTP server for monitoring and operating the
// archival jobs. It binds to loopback by default.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/dbarchiver/internal/core"
	"github.com/flemzord/dbarchiver/internal/cron"
	"github.com/flemzord/dbarchiver/internal/metrics"
)

// Service names the gateway looks up at Start.
const (
	ServiceJobs     = "jobs.runner"
	ServiceMetrics  = "metrics.collector"
	ServiceReloader = "config.reloader"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// JobRunner is the subset of the job runner the gateway drives.
type JobRunner interface {
	Jobs() []cron.JobStatus
	Trigger(name string) error
}

// ConfigReloader re-reads the configuration file and swaps the job set.
type ConfigReloader interface {
	Reload(ctx context.Context) error
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing imports it.
type Gateway struct {
	config    Config
	auth      atomic.Pointer[AuthConfig]
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	// Resolved lazily at Start() via service registry.
	jobs     JobRunner
	metrics  *metrics.Collector
	reloader ConfigReloader
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.setAuth(g.config.Auth)
	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway: no credentials configured, admin endpoints disabled")
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	g.resolveServices()
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// resolveServices binds the optional collaborators. Missing services
// degrade the matching endpoints instead of failing Start.
func (g *Gateway) resolveServices() {
	if svc, ok := g.appCtx.Service(ServiceJobs); ok {
		if r, ok := svc.(JobRunner); ok {
			g.jobs = r
		}
	}
	if svc, ok := g.appCtx.Service(ServiceMetrics); ok {
		if c, ok := svc.(*metrics.Collector); ok {
			g.metrics = c
		}
	}
	if svc, ok := g.appCtx.Service(ServiceReloader); ok {
		if r, ok := svc.(ConfigReloader); ok {
			g.reloader = r
		}
	}
}

// Reload implements core.Reloader. Credentials are swapped in place; a new
// bind address or enabling auth on a gateway started without it needs a
// restart.
func (g *Gateway) Reload(ctx *core.AppContext) error {
	node, ok := ctx.ModuleConfig()
	if !ok {
		g.logger.Warn("gateway: section removed from configuration, restart to disable")
		return nil
	}

	var next Config
	if err := node.Decode(&next); err != nil {
		return err
	}
	next.defaults()

	if next.Bind != g.config.Bind {
		g.logger.Warn("gateway: bind address changed, restart required", "current", g.config.Bind, "configured", next.Bind)
	}
	if next.Auth.IsConfigured() && !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway: credentials added, restart required to mount admin endpoints")
	}
	g.setAuth(next.Auth)
	return nil
}

func (g *Gateway) setAuth(a AuthConfig) {
	g.auth.Store(&a)
}

// currentAuth returns the credentials in force.
func (g *Gateway) currentAuth() AuthConfig {
	if a := g.auth.Load(); a != nil {
		return *a
	}
	return g.config.Auth
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
