// Package telemetry installs the OpenTelemetry providers the engine and the
// cache report to. Metrics are exported in Prometheus format; finished spans
// are written to the process logger at debug level.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config selects what Init installs.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Metrics enables the Prometheus-backed MeterProvider.
	Metrics bool
	// Tracing enables the SDK TracerProvider.
	Tracing bool
	// Logger receives finished spans at debug level. Nil means slog.Default().
	Logger *slog.Logger
}

// Provider owns the installed providers and the metrics registry.
type Provider struct {
	registry *prometheus.Registry
	meter    *sdkmetric.MeterProvider
	tracer   *sdktrace.TracerProvider
}

// Init builds the providers selected by cfg and installs them globally.
func Init(cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "datagridgo"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	res := resource.NewWithAttributes("",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	p := &Provider{}
	if cfg.Metrics {
		// A private registry keeps repeated Init calls (tests, several apps in
		// one process) from colliding on the default registerer.
		p.registry = prometheus.NewRegistry()
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := promexporter.New(promexporter.WithRegisterer(p.registry))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		p.meter = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		otel.SetMeterProvider(p.meter)
	}

	if cfg.Tracing {
		p.tracer = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithSpanProcessor(&logProcessor{logger: cfg.Logger}),
		)
		otel.SetTracerProvider(p.tracer)
	}
	return p, nil
}

// Handler serves the collected metrics. It answers 404 when metrics are off.
func (p *Provider) Handler() http.Handler {
	if p == nil || p.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tracer != nil {
		errs = append(errs, p.tracer.Shutdown(ctx))
	}
	if p.meter != nil {
		errs = append(errs, p.meter.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// logProcessor logs every finished span.
type logProcessor struct {
	logger *slog.Logger
}

func (l *logProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (l *logProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	attrs := []any{
		"span", s.Name(),
		"trace_id", s.SpanContext().TraceID().String(),
		"duration", s.EndTime().Sub(s.StartTime()),
	}
	if st := s.Status(); st.Description != "" {
		attrs = append(attrs, "status", st.Description)
	}
	l.logger.Debug("Span finished.", attrs...)
}

func (l *logProcessor) Shutdown(context.Context) error   { return nil }
func (l *logProcessor) ForceFlush(context.Context) error { return nil }
