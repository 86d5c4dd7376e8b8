package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is reported as the service.name resource attribute.
const ServiceName = "dreamops"

// Exporter modes accepted by Setup.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// instrumentationName scopes the tracer and meter.
const instrumentationName = "github.com/SkySingh04/DreamOps-sub002"

// Options selects the OpenTelemetry exporters.
type Options struct {
	Tracing string // none or stdout
	Metrics string // none or stdout
	Writer  io.Writer
}

// ShutdownFunc flushes and stops the providers installed by Setup.
type ShutdownFunc func(context.Context) error

// Setup installs the global tracer and meter providers. With both exporters
// set to none the global no-op providers stay in place.
func Setup(ctx context.Context, opts Options, logger *slog.Logger) (ShutdownFunc, error) {
	var shutdowns []ShutdownFunc
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		return errors.Join(errs...)
	}

	res := resource.NewSchemaless(attribute.String("service.name", ServiceName))

	switch opts.Tracing {
	case "", ExporterNone:
		logger.Debug("telemetry: tracing disabled")
	case ExporterStdout:
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(opts.Writer), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		shutdowns = append(shutdowns, tp.Shutdown)
		logger.Debug("telemetry: tracing enabled", "exporter", opts.Tracing)
	default:
		return nil, fmt.Errorf("unknown tracing exporter %q", opts.Tracing)
	}

	switch opts.Metrics {
	case "", ExporterNone:
		logger.Debug("telemetry: otel metrics disabled")
	case ExporterStdout:
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(opts.Writer))
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		mp := metric.NewMeterProvider(
			metric.WithReader(metric.NewPeriodicReader(exporter)),
			metric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
		logger.Debug("telemetry: otel metrics enabled", "exporter", opts.Metrics)
	default:
		_ = shutdown(ctx)
		return nil, fmt.Errorf("unknown metrics exporter %q", opts.Metrics)
	}

	return shutdown, nil
}

// Tracer returns the tracer used by the services.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
