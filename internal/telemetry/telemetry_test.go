package telemetry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ToolCallsTotal.WithLabelValues("k8s", "get_pods", "ok").Inc()
	m.ToolCallsTotal.WithLabelValues("k8s", "get_pods", "timeout").Inc()
	m.ConnectedServers.Set(2)
	m.ResolutionsTotal.WithLabelValues("oom").Inc()
	m.ToolCallDuration.WithLabelValues("k8s").Observe(0.2)

	if got := testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("k8s", "get_pods", "ok")); got != 1 {
		t.Errorf("tool_calls_total{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConnectedServers); got != 2 {
		t.Errorf("connected_servers = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.ToolCallsTotal); got != 2 {
		t.Errorf("tool_calls_total series = %d, want 2", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	var hist *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "dreamops_tool_call_duration_seconds" {
			hist = mf
		}
	}
	if hist == nil {
		t.Fatal("tool call duration histogram not gathered")
	}
	if got := hist.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("histogram sample count = %d, want 1", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ResolveCacheHits.Add(3)

	path := filepath.Join(t.TempDir(), "dreamops.prom")
	if err := WriteTextfile(reg, path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "dreamops_resolve_cache_hits_total 3") {
		t.Errorf("textfile missing cache hits:\n%s", data)
	}
}

func TestSetup(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"disabled", Options{Tracing: ExporterNone, Metrics: ExporterNone}, false},
		{"empty means disabled", Options{}, false},
		{"stdout", Options{Tracing: ExporterStdout, Metrics: ExporterStdout}, false},
		{"unknown tracing", Options{Tracing: "jaeger"}, true},
		{"unknown metrics", Options{Tracing: ExporterStdout, Metrics: "otlp"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.opts.Writer = &buf

			shutdown, err := Setup(context.Background(), tt.opts, logger)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Setup() should fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("Setup() error = %v", err)
			}

			_, span := Tracer().Start(context.Background(), "test")
			span.End()

			meters, err := NewMeters()
			if err != nil {
				t.Fatalf("NewMeters() error = %v", err)
			}
			meters.ToolCallCount.Add(context.Background(), 1, WithAttrs(attribute.String("server", "k8s")))

			if err := shutdown(context.Background()); err != nil {
				t.Fatalf("shutdown() error = %v", err)
			}
			if tt.opts.Tracing == ExporterStdout && !strings.Contains(buf.String(), `"Name": "test"`) {
				t.Errorf("span not exported:\n%s", buf.String())
			}
		})
	}
}
