package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	celeval "github.com/SkySingh04/DreamOps-sub002/internal/adapter/outbound/cel"
	"github.com/SkySingh04/DreamOps-sub002/internal/adapter/outbound/transport"
	"github.com/SkySingh04/DreamOps-sub002/internal/config"
	"github.com/SkySingh04/DreamOps-sub002/internal/domain/capability"
	"github.com/SkySingh04/DreamOps-sub002/internal/domain/resolution"
	"github.com/SkySingh04/DreamOps-sub002/internal/port/outbound"
	"github.com/SkySingh04/DreamOps-sub002/internal/service"
	"github.com/SkySingh04/DreamOps-sub002/internal/telemetry"
)

// Output formats accepted by --output.
const (
	outputJSON = "json"
	outputYAML = "yaml"
)

// app holds the components shared by the commands for one invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	meters   *telemetry.Meters
	shutdown telemetry.ShutdownFunc
}

// newApp loads the configuration and wires logging and telemetry.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Log, os.Stderr)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Debug("loaded config", "file", configFile)
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.Options{
		Tracing: cfg.Telemetry.Tracing,
		Metrics: cfg.Telemetry.Metrics,
		Writer:  os.Stderr,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	meters, err := telemetry.NewMeters()
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("failed to create meters: %w", err)
	}

	reg := prometheus.NewRegistry()
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  telemetry.NewMetrics(reg),
		meters:   meters,
		shutdown: shutdown,
	}, nil
}

// close flushes telemetry and writes the metrics textfile when configured.
func (a *app) close() {
	ctx := context.Background()
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", "error", err)
	}
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := telemetry.WriteTextfile(a.registry, path); err != nil {
			a.logger.Warn("failed to write metrics textfile", "path", path, "error", err)
		} else {
			a.logger.Debug("metrics written", "path", path)
		}
	}
}

// transportFactory builds transports that log through the app logger. The
// transports add the server name themselves.
func (a *app) transportFactory() service.TransportFactory {
	return func(srv *capability.Server) (outbound.Transport, error) {
		return transport.New(srv,
			transport.WithLogger(a.logger),
			transport.WithClientInfo("dreamops", Version),
		)
	}
}

func (a *app) clientOptions() []service.ClientOption {
	return []service.ClientOption{
		service.WithClientMetrics(a.metrics),
		service.WithClientMeters(a.meters),
	}
}

func (a *app) newClient(srv *capability.Server) *service.CapabilityClient {
	return service.NewCapabilityClient(srv, a.transportFactory(), a.logger, a.clientOptions()...)
}

// resolver builds the effective rule table.
func (a *app) resolver() (*resolution.Resolver, error) {
	eval, err := celeval.NewEvaluator()
	if err != nil {
		return nil, err
	}
	table, err := a.cfg.BuildTable(eval, a.logger)
	if err != nil {
		return nil, err
	}
	return resolution.NewResolver(table), nil
}

// incidentService wires the gatherer and resolver.
func (a *app) incidentService() (*service.IncidentService, error) {
	resolver, err := a.resolver()
	if err != nil {
		return nil, err
	}
	gatherer := service.NewContextGatherer(a.cfg.ToServers(), a.transportFactory(), a.logger, a.metrics, a.clientOptions()...)
	return service.NewIncidentService(gatherer, resolver, a.logger,
		service.WithIncidentMetrics(a.metrics),
		service.WithIncidentMeters(a.meters),
		service.WithDecisionCache(service.NewDecisionCache(a.cfg.Resolver.CacheSize)),
	), nil
}

// signalContext returns a context cancelled on the first graceful signal.
// A second signal gets the default behaviour.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}

func validateOutput(format string) error {
	switch format {
	case outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("invalid output format %q (must be %s or %s)", format, outputJSON, outputYAML)
	}
}

// outputEncoder writes a stream of values: indented JSON values, or YAML
// documents separated by ---.
type outputEncoder struct {
	json *json.Encoder
	yaml *yaml.Encoder
}

func newOutputEncoder(w io.Writer, format string) *outputEncoder {
	if format == outputYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return &outputEncoder{yaml: enc}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &outputEncoder{json: enc}
}

func (e *outputEncoder) Encode(v any) error {
	if e.yaml != nil {
		return e.yaml.Encode(v)
	}
	return e.json.Encode(v)
}

func (e *outputEncoder) Close() error {
	if e.yaml != nil {
		return e.yaml.Close()
	}
	return nil
}

// decodeAlerts reads one alert per YAML document. JSON input is accepted
// as YAML. Empty documents are skipped.
func decodeAlerts(r io.Reader) ([]resolution.AlertSignal, error) {
	dec := yaml.NewDecoder(r)
	var alerts []resolution.AlertSignal
	for doc := 1; ; doc++ {
		var alert resolution.AlertSignal
		err := dec.Decode(&alert)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("alert document %d: %w", doc, err)
		}
		if alert.Description == "" && len(alert.Metadata) == 0 {
			continue
		}
		alerts = append(alerts, alert)
	}
	if len(alerts) == 0 {
		return nil, errors.New("no alerts found in input")
	}
	return alerts, nil
}

// parseMeta turns key=value pairs into alert metadata.
func parseMeta(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --meta %q (want key=value)", pair)
		}
		meta[k] = v
	}
	return meta, nil
}
