package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// WithAttrs returns a metric.MeasurementOption from attribute key-value pairs.
func WithAttrs(attrs ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributes(attrs...)
}

// Meters holds pre-created OTel instruments mirroring the Prometheus metrics
// that matter per alert.
type Meters struct {
	ToolCallDuration metric.Float64Histogram
	ToolCallCount    metric.Int64Counter
	ResolutionCount  metric.Int64Counter
}

// NewMeters creates the instruments from the global meter provider.
func NewMeters() (*Meters, error) {
	meter := otel.Meter(instrumentationName)

	toolCallDuration, err := meter.Float64Histogram(
		"dreamops.tool_call.duration",
		metric.WithDescription("Duration of capability tool calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	toolCallCount, err := meter.Int64Counter(
		"dreamops.tool_call.count",
		metric.WithDescription("Number of capability tool calls"),
	)
	if err != nil {
		return nil, err
	}

	resolutionCount, err := meter.Int64Counter(
		"dreamops.resolution.count",
		metric.WithDescription("Number of alerts resolved"),
	)
	if err != nil {
		return nil, err
	}

	return &Meters{
		ToolCallDuration: toolCallDuration,
		ToolCallCount:    toolCallCount,
		ResolutionCount:  resolutionCount,
	}, nil
}
