package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/capability"
	"github.com/SkySingh04/DreamOps-sub002/internal/domain/resolution"
	"github.com/SkySingh04/DreamOps-sub002/internal/telemetry"
)

// ContextEntry is one successful context call.
type ContextEntry struct {
	Server string                     `json:"server" yaml:"server"`
	Result *capability.ToolCallResult `json:"result" yaml:"result"`
}

// ContextBundle holds the successful context calls for one alert, ordered by
// server name and then by call order. Failed calls are absent.
type ContextBundle []ContextEntry

// placeholderPattern matches {key} placeholders in context call params.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_.-]+)\}`)

// ContextGatherer runs the configured context calls of every enabled server
// for an alert. Each server gets its own client per alert, so servers are
// queried concurrently while calls on one server stay sequential.
type ContextGatherer struct {
	servers    []*capability.Server
	factory    TransportFactory
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	clientOpts []ClientOption
}

// NewContextGatherer creates a gatherer over the given servers.
func NewContextGatherer(servers []*capability.Server, factory TransportFactory, logger *slog.Logger, metrics *telemetry.Metrics, opts ...ClientOption) *ContextGatherer {
	return &ContextGatherer{
		servers:    servers,
		factory:    factory,
		logger:     logger,
		metrics:    metrics,
		clientOpts: opts,
	}
}

// Gather connects to each enabled server with context calls, runs its calls
// and returns the successful results. It never fails: unreachable servers
// and failed calls are logged and left out.
func (g *ContextGatherer) Gather(ctx context.Context, alert resolution.AlertSignal) ContextBundle {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string][]ContextEntry)
	)

	for _, srv := range g.servers {
		if !srv.Enabled || len(srv.ContextCalls) == 0 {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries := g.gatherServer(ctx, srv, alert)
			mu.Lock()
			results[srv.Name] = entries
			mu.Unlock()
		}()
	}
	wg.Wait()

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	bundle := ContextBundle{}
	for _, name := range names {
		bundle = append(bundle, results[name]...)
	}
	return bundle
}

func (g *ContextGatherer) gatherServer(ctx context.Context, srv *capability.Server, alert resolution.AlertSignal) []ContextEntry {
	logger := g.logger.With("server", srv.Name)

	client := NewCapabilityClient(srv, g.factory, g.logger, append([]ClientOption{WithClientMetrics(g.metrics)}, g.clientOpts...)...)
	if !client.Connect(ctx) {
		g.count(srv.Name, "unreachable", len(srv.ContextCalls))
		return nil
	}
	defer client.Disconnect()

	var entries []ContextEntry
	for _, call := range srv.ContextCalls {
		if ctx.Err() != nil {
			logger.Debug("context gathering cancelled", "error", ctx.Err())
			break
		}

		params, missing := SubstituteParams(call.Params, alert.Metadata)
		if len(missing) > 0 {
			logger.Debug("skipping context call, alert lacks metadata", "tool", call.Tool, "missing", missing)
			g.count(srv.Name, "skipped", 1)
			continue
		}

		result := client.CallTool(ctx, call.Tool, params)
		if !result.Success {
			logger.Warn("context call failed", "tool", call.Tool, "kind", result.Kind, "error", result.Error)
			g.count(srv.Name, "error", 1)
			continue
		}
		g.count(srv.Name, "ok", 1)
		entries = append(entries, ContextEntry{Server: srv.Name, Result: result})
	}
	return entries
}

func (g *ContextGatherer) count(server, result string, n int) {
	if g.metrics == nil || n == 0 {
		return
	}
	g.metrics.ContextCallsTotal.WithLabelValues(server, result).Add(float64(n))
}

// SubstituteParams returns a copy of params with {key} placeholders in
// string values replaced by alert metadata. A string that is exactly one
// placeholder takes the metadata value as is, keeping its type. Keys with no
// metadata value are reported in missing, sorted.
func SubstituteParams(params map[string]any, metadata map[string]any) (out map[string]any, missing []string) {
	seen := make(map[string]bool)
	out = make(map[string]any, len(params))
	for k, v := range params {
		out[k] = substituteValue(v, metadata, seen)
	}
	for k := range seen {
		missing = append(missing, k)
	}
	sort.Strings(missing)
	return out, missing
}

func substituteValue(v any, metadata map[string]any, missing map[string]bool) any {
	switch val := v.(type) {
	case string:
		if m := placeholderPattern.FindStringSubmatch(val); m != nil && m[0] == val {
			if mv, ok := metadata[m[1]]; ok && mv != nil {
				return mv
			}
			missing[m[1]] = true
			return val
		}
		return placeholderPattern.ReplaceAllStringFunc(val, func(ph string) string {
			key := strings.Trim(ph, "{}")
			mv, ok := metadata[key]
			if !ok || mv == nil {
				missing[key] = true
				return ph
			}
			return fmt.Sprint(mv)
		})
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = substituteValue(item, metadata, missing)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = substituteValue(item, metadata, missing)
		}
		return out
	default:
		return v
	}
}
