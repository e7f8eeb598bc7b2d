// Package tracing configures OpenTelemetry span export for archival runs.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flemzord/dbarchiver/internal/core"
)

// InstrumentationName names the tracer used for archival spans.
const InstrumentationName = "github.com/flemzord/dbarchiver"

// Config selects the OTLP/HTTP collector.
type Config struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	Headers     map[string]string
	// SampleRatio is the fraction of runs traced; nil means always.
	SampleRatio *float64
	Version     string
}

// Provider owns the tracer provider and its shutdown.
type Provider struct {
	tp       trace.TracerProvider
	shutdown func(context.Context) error
	logger   *slog.Logger
}

// Setup builds a tracer provider. With no endpoint configured it returns a
// no-op provider and never opens a connection.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		return &Provider{
			tp:       noop.NewTracerProvider(),
			shutdown: func(context.Context) error { return nil },
			logger:   logger,
		}, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tracing: creating exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "dbarchiver"
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", name)}
	if cfg.Version != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.Version))
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio != nil {
		sampler = sdktrace.TraceIDRatioBased(*cfg.SampleRatio)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(tp)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn("tracing: export error", "error", err)
	}))

	logger.Info("tracing: exporting spans", "endpoint", cfg.Endpoint)
	return &Provider{
		tp: tp,
		shutdown: func(ctx context.Context) error {
			return errors.Join(tp.Shutdown(ctx), exporter.Shutdown(ctx))
		},
		logger: logger,
	}, nil
}

// Tracer returns the archival tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tp.Tracer(InstrumentationName)
}

// ModuleID is the module ID of the tracing provider in the App lifecycle.
const ModuleID core.ModuleID = "tracing"

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: ModuleID, New: func() core.Module { return p }}
}

// Stop flushes pending spans and shuts the exporter down.
func (p *Provider) Stop(ctx context.Context) error {
	if err := p.shutdown(ctx); err != nil {
		return fmt.Errorf("tracing: shutdown: %w", err)
	}
	return nil
}
