package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/capability"
	"github.com/SkySingh04/DreamOps-sub002/internal/port/outbound"
	"github.com/SkySingh04/DreamOps-sub002/internal/telemetry"
	"github.com/SkySingh04/DreamOps-sub002/pkg/mcp"
)

// TransportFactory creates a fresh Transport for a server. The default
// factory is transport.New.
type TransportFactory func(srv *capability.Server) (outbound.Transport, error)

// ClientOption configures a CapabilityClient.
type ClientOption func(*CapabilityClient)

// WithClientMetrics records connects and calls in Prometheus metrics.
func WithClientMetrics(m *telemetry.Metrics) ClientOption {
	return func(c *CapabilityClient) {
		c.metrics = m
	}
}

// WithClientMeters records call latency in OTel instruments.
func WithClientMeters(m *telemetry.Meters) ClientOption {
	return func(c *CapabilityClient) {
		c.meters = m
	}
}

// WithClientClock overrides the clock used for result timestamps.
func WithClientClock(now func() time.Time) ClientOption {
	return func(c *CapabilityClient) {
		c.now = now
	}
}

// CapabilityClient owns one transport to one capability server and exposes
// connect, call and disconnect. Connect and CallTool never return errors:
// every failure is logged and reported in the return value.
//
// Calls on one client are serialized. Callers that need parallel calls use
// one client per logical session.
type CapabilityClient struct {
	server  *capability.Server
	factory TransportFactory
	logger  *slog.Logger
	metrics *telemetry.Metrics
	meters  *telemetry.Meters
	tracer  trace.Tracer
	now     func() time.Time

	connectMu sync.Mutex // serializes Connect
	callMu    sync.Mutex // one outstanding request per transport

	mu        sync.Mutex // guards the fields below
	state     capability.ConnectionState
	transport outbound.Transport
	tools     *capability.ToolSet
	session   uint64 // bumped by every Disconnect

	nextID atomic.Int64
}

// NewCapabilityClient creates a disconnected client for the server.
func NewCapabilityClient(srv *capability.Server, factory TransportFactory, logger *slog.Logger, opts ...ClientOption) *CapabilityClient {
	c := &CapabilityClient{
		server:  srv,
		factory: factory,
		logger:  logger.With("server", srv.Name),
		tracer:  telemetry.Tracer(),
		now:     time.Now,
		state:   capability.StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the server name.
func (c *CapabilityClient) Name() string {
	return c.server.Name
}

// State returns the current connection state.
func (c *CapabilityClient) State() capability.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Tools returns the discovered tools, empty unless connected.
func (c *CapabilityClient) Tools() []capability.ToolDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tools.List()
}

// Connect opens a fresh transport and discovers its tools within the
// variant's connect budget. A live session is disconnected first. Returns
// false on any failure; the cause is logged.
func (c *CapabilityClient) Connect(ctx context.Context) bool {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.Disconnect()

	ctx, span := c.tracer.Start(ctx, "capability.connect",
		trace.WithAttributes(attribute.String("server", c.server.Name), attribute.String("type", string(c.server.Type))))
	defer span.End()

	c.mu.Lock()
	session := c.session
	c.state = capability.StateConnecting
	c.mu.Unlock()

	tr, err := c.factory(c.server)
	if err != nil {
		c.abortConnect(session, nil, span, "create transport", err)
		return false
	}

	// Publish the transport before any I/O so a concurrent Disconnect can
	// close it and unblock Open or Discover.
	c.mu.Lock()
	if c.session != session {
		c.mu.Unlock()
		_ = tr.Close()
		c.logger.Debug("connect abandoned, client was disconnected")
		return false
	}
	c.transport = tr
	c.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, tr.Timeouts().Connect)
	defer cancel()

	if err := tr.Open(cctx); err != nil {
		c.abortConnect(session, tr, span, "open transport", err)
		return false
	}
	descriptors, err := tr.Discover(cctx)
	if err != nil {
		c.abortConnect(session, tr, span, "discover tools", err)
		return false
	}
	tools := capability.NewToolSet(descriptors)

	c.mu.Lock()
	if c.session != session {
		c.mu.Unlock()
		c.logger.Debug("connect abandoned, client was disconnected")
		return false
	}
	c.state = capability.StateConnected
	c.tools = tools
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ConnectsTotal.WithLabelValues(c.server.Name, "ok").Inc()
		c.metrics.ConnectedServers.Inc()
	}
	span.SetAttributes(attribute.Int("tools", tools.Len()))
	c.logger.Info("connected to capability server", "type", c.server.Type, "tools", tools.Len())
	return true
}

func (c *CapabilityClient) abortConnect(session uint64, tr outbound.Transport, span trace.Span, step string, err error) {
	c.mu.Lock()
	if c.session == session {
		c.state = capability.StateDisconnected
		c.transport = nil
		c.tools = nil
	}
	c.mu.Unlock()

	if tr != nil {
		if cerr := tr.Close(); cerr != nil {
			c.logger.Debug("close after failed connect", "error", cerr)
		}
	}

	if c.metrics != nil {
		c.metrics.ConnectsTotal.WithLabelValues(c.server.Name, "error").Inc()
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, step)
	c.logger.Warn("failed to connect to capability server", "step", step, "kind", capability.KindOf(err), "error", err)
}

// Disconnect closes the transport, clears the tool set and returns to
// Disconnected. Safe to call at any time, including while a call is in
// flight: closing the transport unblocks it.
func (c *CapabilityClient) Disconnect() {
	c.mu.Lock()
	tr := c.transport
	wasConnected := c.state == capability.StateConnected
	c.transport = nil
	c.tools = nil
	c.state = capability.StateDisconnected
	c.session++
	c.mu.Unlock()

	if tr == nil {
		return
	}
	if err := tr.Close(); err != nil {
		c.logger.Warn("error closing transport", "error", err)
	}
	if wasConnected {
		if c.metrics != nil {
			c.metrics.ConnectedServers.Dec()
		}
		c.logger.Info("disconnected from capability server")
	}
}

// CallTool invokes a discovered tool. Not-connected and unknown-tool
// failures are decided locally without touching the transport.
func (c *CapabilityClient) CallTool(ctx context.Context, name string, params map[string]any) *capability.ToolCallResult {
	c.mu.Lock()
	state, tr, tools := c.state, c.transport, c.tools
	c.mu.Unlock()

	if state != capability.StateConnected || tr == nil {
		return capability.NewFailureResult(name, params, capability.KindNotConnected, capability.ErrNotConnected.Error(), c.now())
	}
	if !tools.Has(name) {
		return capability.NewFailureResult(name, params, capability.KindToolNotAvailable, capability.ErrToolNotAvailable.Error(), c.now())
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	ctx, span := c.tracer.Start(ctx, "capability.call_tool",
		trace.WithAttributes(attribute.String("server", c.server.Name), attribute.String("tool", name)))
	defer span.End()

	start := time.Now()
	result := c.exchange(ctx, tr, name, params)
	c.observe(ctx, name, result, time.Since(start))

	if !result.Success {
		span.SetStatus(codes.Error, result.Error)
	}
	return result
}

func (c *CapabilityClient) exchange(ctx context.Context, tr outbound.Transport, name string, params map[string]any) *capability.ToolCallResult {
	req, err := mcp.NewToolCall(c.nextID.Add(1), name, params)
	if err != nil {
		return capability.NewFailureResult(name, params, capability.KindProtocol, err.Error(), c.now())
	}

	cctx, cancel := context.WithTimeout(ctx, tr.Timeouts().Call)
	defer cancel()

	if err := tr.Send(cctx, req); err != nil {
		return c.callFailed(tr, name, params, err)
	}
	resp, err := tr.Receive(cctx)
	if err != nil {
		return c.callFailed(tr, name, params, err)
	}

	content, errMsg := capability.NormalizeResponse(resp)
	if errMsg != "" {
		c.logger.Debug("tool reported an error", "tool", name, "error", errMsg)
		return capability.NewFailureResult(name, params, capability.KindToolExecution, errMsg, c.now())
	}
	return capability.NewSuccessResult(name, params, content, c.now())
}

// callFailed converts a transport error into a failure result. A closed
// channel ends the session.
func (c *CapabilityClient) callFailed(tr outbound.Transport, name string, params map[string]any, err error) *capability.ToolCallResult {
	kind := capability.KindOf(err)
	c.logger.Warn("tool call failed", "tool", name, "kind", kind, "error", err)

	if errors.Is(err, capability.ErrChannelClosed) {
		c.mu.Lock()
		current := c.transport == tr
		c.mu.Unlock()
		if current {
			c.logger.Info("capability server channel closed, disconnecting")
			c.Disconnect()
		}
	}
	return capability.NewFailureResult(name, params, kind, err.Error(), c.now())
}

func (c *CapabilityClient) observe(ctx context.Context, tool string, result *capability.ToolCallResult, elapsed time.Duration) {
	outcome := "ok"
	if !result.Success {
		outcome = string(result.Kind)
	}
	if c.metrics != nil {
		c.metrics.ToolCallsTotal.WithLabelValues(c.server.Name, tool, outcome).Inc()
		c.metrics.ToolCallDuration.WithLabelValues(c.server.Name).Observe(elapsed.Seconds())
	}
	if c.meters != nil {
		attrs := telemetry.WithAttrs(
			attribute.String("server", c.server.Name),
			attribute.String("tool", tool),
			attribute.String("result", outcome),
		)
		c.meters.ToolCallDuration.Record(ctx, elapsed.Seconds(), attrs)
		c.meters.ToolCallCount.Add(ctx, 1, attrs)
	}
}
