package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/capability"
	"github.com/SkySingh04/DreamOps-sub002/internal/port/outbound"
	"github.com/SkySingh04/DreamOps-sub002/internal/telemetry"
	"github.com/SkySingh04/DreamOps-sub002/pkg/mcp"
)

// mockTransport records every call and answers from handler.
type mockTransport struct {
	mu        sync.Mutex
	opens     int
	discovers int
	sends     int
	receives  int
	closes    int
	closed    chan struct{}

	openErr     error
	discoverErr error
	tools       []capability.ToolDescriptor
	handler     func(req *mcp.Request) (*mcp.Response, error)
	block       bool // Receive waits for Close or ctx
	timeouts    outbound.Timeouts
	onOpen      func() // runs at the start of Open, outside the lock

	last *mcp.Request
}

func newMockTransport(tools ...string) *mockTransport {
	m := &mockTransport{
		closed:   make(chan struct{}),
		timeouts: outbound.Timeouts{Connect: time.Second, Call: time.Second},
	}
	for _, name := range tools {
		m.tools = append(m.tools, capability.ToolDescriptor{Name: name})
	}
	return m
}

func (m *mockTransport) Open(ctx context.Context) error {
	if m.onOpen != nil {
		m.onOpen()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	return m.openErr
}

func (m *mockTransport) Discover(ctx context.Context) ([]capability.ToolDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discovers++
	return m.tools, m.discoverErr
}

func (m *mockTransport) Send(ctx context.Context, req *mcp.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends++
	m.last = req
	return nil
}

func (m *mockTransport) Receive(ctx context.Context) (*mcp.Response, error) {
	m.mu.Lock()
	m.receives++
	req, block, handler := m.last, m.block, m.handler
	m.mu.Unlock()

	if block {
		select {
		case <-m.closed:
			return nil, fmt.Errorf("%w: %w", capability.ErrConnection, capability.ErrChannelClosed)
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: no response within budget", capability.ErrTimeout)
		}
	}
	if handler == nil {
		return &mcp.Response{ID: fmt.Sprint(req.ID), Result: json.RawMessage(`{"content":[{"type":"text","text":"ok"}]}`)}, nil
	}
	return handler(req)
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closes == 0 {
		close(m.closed)
	}
	m.closes++
	return nil
}

func (m *mockTransport) Timeouts() outbound.Timeouts { return m.timeouts }

func (m *mockTransport) io() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens + m.discovers + m.sends + m.receives
}

func (m *mockTransport) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// factoryOf hands out the given transports in order.
type factoryOf struct {
	mu    sync.Mutex
	items []*mockTransport
	made  int
}

func (f *factoryOf) New(*capability.Server) (outbound.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.made >= len(f.items) {
		return nil, errors.New("no more transports")
	}
	tr := f.items[f.made]
	f.made++
	return tr, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testServer = &capability.Server{Name: "k8s", Type: capability.ServerTypeProcess, Command: "kubectl-mcp"}

func newTestClient(t *testing.T, trs ...*mockTransport) (*CapabilityClient, *factoryOf) {
	t.Helper()
	f := &factoryOf{items: trs}
	c := NewCapabilityClient(testServer, f.New, testLogger())
	t.Cleanup(c.Disconnect)
	return c, f
}

func TestCapabilityClient_CallWhileDisconnected(t *testing.T) {
	t.Parallel()

	tr := newMockTransport("get_pods")
	c, _ := newTestClient(t, tr)

	result := c.CallTool(context.Background(), "get_pods", map[string]any{"namespace": "default"})
	if result.Success {
		t.Fatal("CallTool() on a disconnected client succeeded")
	}
	if result.Error != "not connected" || result.Kind != capability.KindNotConnected {
		t.Errorf("result = %q (%s), want not connected", result.Error, result.Kind)
	}
	if result.Params["namespace"] != "default" || result.ToolName != "get_pods" {
		t.Errorf("result does not echo the request: %+v", result)
	}
	if got := tr.io(); got != 0 {
		t.Errorf("transport I/O = %d, want 0", got)
	}
}

func TestCapabilityClient_UnknownToolNoIO(t *testing.T) {
	t.Parallel()

	tr := newMockTransport("get_pods")
	c, _ := newTestClient(t, tr)
	if !c.Connect(context.Background()) {
		t.Fatal("Connect() = false")
	}
	before := tr.io()

	result := c.CallTool(context.Background(), "delete_cluster", nil)
	if result.Success || result.Error != "tool not available" || result.Kind != capability.KindToolNotAvailable {
		t.Errorf("result = %+v, want tool not available", result)
	}
	if got := tr.io(); got != before {
		t.Errorf("transport I/O grew from %d to %d", before, got)
	}
}

func TestCapabilityClient_ReconnectClosesFirstTransport(t *testing.T) {
	t.Parallel()

	first, second := newMockTransport("a"), newMockTransport("b")
	closedBeforeOpen := -1
	second.onOpen = func() { closedBeforeOpen = first.closeCount() }
	c, f := newTestClient(t, first, second)

	if !c.Connect(context.Background()) {
		t.Fatal("first Connect() = false")
	}
	if !c.Connect(context.Background()) {
		t.Fatal("second Connect() = false")
	}

	if closedBeforeOpen != 1 {
		t.Errorf("first transport closed %d times when the second opened, want 1", closedBeforeOpen)
	}

	if got := first.closeCount(); got != 1 {
		t.Errorf("first transport closed %d times, want 1", got)
	}
	if got := second.closeCount(); got != 0 {
		t.Errorf("second transport closed %d times, want 0", got)
	}
	if f.made != 2 {
		t.Errorf("transports made = %d, want 2", f.made)
	}
	tools := c.Tools()
	if len(tools) != 1 || tools[0].Name != "b" {
		t.Errorf("Tools() = %v, want the second session's", tools)
	}
}

func TestCapabilityClient_DisconnectNeverConnected(t *testing.T) {
	t.Parallel()

	c, f := newTestClient(t)
	c.Disconnect()
	c.Disconnect()

	if c.State() != capability.StateDisconnected {
		t.Errorf("State() = %s, want disconnected", c.State())
	}
	if f.made != 0 {
		t.Errorf("transports made = %d, want 0", f.made)
	}
}

func TestCapabilityClient_ConnectFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(*mockTransport)
	}{
		{"open", func(m *mockTransport) { m.openErr = fmt.Errorf("%w: refused", capability.ErrConnection) }},
		{"discover", func(m *mockTransport) { m.discoverErr = fmt.Errorf("%w: bad list", capability.ErrProtocol) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr := newMockTransport("x")
			tt.setup(tr)
			c, _ := newTestClient(t, tr)

			if c.Connect(context.Background()) {
				t.Fatal("Connect() = true, want false")
			}
			if c.State() != capability.StateDisconnected {
				t.Errorf("State() = %s, want disconnected", c.State())
			}
			if tr.closeCount() != 1 {
				t.Errorf("failed transport closed %d times, want 1", tr.closeCount())
			}
			if len(c.Tools()) != 0 {
				t.Errorf("Tools() = %v, want empty", c.Tools())
			}
		})
	}
}

func TestCapabilityClient_FactoryFailure(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	if c.Connect(context.Background()) {
		t.Fatal("Connect() = true with a failing factory")
	}
	if c.State() != capability.StateDisconnected {
		t.Errorf("State() = %s, want disconnected", c.State())
	}
}

func TestCapabilityClient_CallTool(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name        string
		handler     func(*mcp.Request) (*mcp.Response, error)
		wantSuccess bool
		wantKind    capability.ErrorKind
		wantText    string
	}{
		{
			name: "content",
			handler: func(req *mcp.Request) (*mcp.Response, error) {
				return &mcp.Response{Result: json.RawMessage(`{"content":[{"type":"text","text":"3 pods"}]}`)}, nil
			},
			wantSuccess: true,
			wantText:    "3 pods",
		},
		{
			name: "bare object is wrapped",
			handler: func(req *mcp.Request) (*mcp.Response, error) {
				return &mcp.Response{Result: json.RawMessage(`{"pods":3}`)}, nil
			},
			wantSuccess: true,
			wantText:    `{"pods":3}`,
		},
		{
			name: "rpc error",
			handler: func(req *mcp.Request) (*mcp.Response, error) {
				return &mcp.Response{Error: &mcp.RPCError{Message: "forbidden"}}, nil
			},
			wantKind: capability.KindToolExecution,
			wantText: "forbidden",
		},
		{
			name: "timeout",
			handler: func(req *mcp.Request) (*mcp.Response, error) {
				return nil, fmt.Errorf("%w: no response within budget", capability.ErrTimeout)
			},
			wantKind: capability.KindTimeout,
			wantText: "timeout",
		},
		{
			name: "malformed",
			handler: func(req *mcp.Request) (*mcp.Response, error) {
				return nil, fmt.Errorf("%w: malformed JSON", capability.ErrProtocol)
			},
			wantKind: capability.KindProtocol,
			wantText: "protocol error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr := newMockTransport("get_pods")
			tr.handler = tt.handler
			f := &factoryOf{items: []*mockTransport{tr}}
			c := NewCapabilityClient(testServer, f.New, testLogger(), WithClientClock(func() time.Time { return at }))
			defer c.Disconnect()

			if !c.Connect(context.Background()) {
				t.Fatal("Connect() = false")
			}
			result := c.CallTool(context.Background(), "get_pods", map[string]any{"namespace": "prod"})

			if result.Success != tt.wantSuccess {
				t.Fatalf("Success = %v, want %v (error %q)", result.Success, tt.wantSuccess, result.Error)
			}
			if !result.Timestamp.Equal(at) {
				t.Errorf("Timestamp = %v, want %v", result.Timestamp, at)
			}
			if tt.wantSuccess {
				if result.Error != "" || result.Text() != tt.wantText {
					t.Errorf("Text() = %q, want %q", result.Text(), tt.wantText)
				}
				return
			}
			if result.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", result.Kind, tt.wantKind)
			}
			if !strings.Contains(result.Error, tt.wantText) {
				t.Errorf("Error = %q, want it to contain %q", result.Error, tt.wantText)
			}
			if len(result.Content) != 0 {
				t.Errorf("failed result has content %v", result.Content)
			}
			if c.State() != capability.StateConnected {
				t.Errorf("State() = %s, want still connected", c.State())
			}
		})
	}
}

func TestCapabilityClient_RequestEnvelope(t *testing.T) {
	t.Parallel()

	tr := newMockTransport("get_logs")
	c, _ := newTestClient(t, tr)
	if !c.Connect(context.Background()) {
		t.Fatal("Connect() = false")
	}

	c.CallTool(context.Background(), "get_logs", map[string]any{"pod": "api-1"})
	c.CallTool(context.Background(), "get_logs", map[string]any{"pod": "api-2"})

	tr.mu.Lock()
	last := tr.last
	tr.mu.Unlock()
	call, err := last.ToolCall()
	if err != nil {
		t.Fatalf("ToolCall() error = %v", err)
	}
	if call.Name != "get_logs" || call.Arguments["pod"] != "api-2" {
		t.Errorf("last call = %+v", call)
	}
	if last.ID != 2 {
		t.Errorf("request id = %d, want 2", last.ID)
	}
}

func TestCapabilityClient_ChannelClosedDisconnects(t *testing.T) {
	t.Parallel()

	tr := newMockTransport("get_pods")
	tr.handler = func(*mcp.Request) (*mcp.Response, error) {
		return nil, fmt.Errorf("%w: %w: server closed its output", capability.ErrConnection, capability.ErrChannelClosed)
	}
	c, _ := newTestClient(t, tr)
	if !c.Connect(context.Background()) {
		t.Fatal("Connect() = false")
	}

	result := c.CallTool(context.Background(), "get_pods", nil)
	if result.Success || result.Kind != capability.KindConnection {
		t.Errorf("result = %+v, want a connection failure", result)
	}
	if c.State() != capability.StateDisconnected {
		t.Errorf("State() = %s, want disconnected", c.State())
	}
	if tr.closeCount() != 1 {
		t.Errorf("transport closed %d times, want 1", tr.closeCount())
	}

	if again := c.CallTool(context.Background(), "get_pods", nil); again.Kind != capability.KindNotConnected {
		t.Errorf("next call kind = %s, want not_connected", again.Kind)
	}
}

func TestCapabilityClient_CallTimeoutUsesTransportBudget(t *testing.T) {
	t.Parallel()

	tr := newMockTransport("slow")
	tr.block = true
	tr.timeouts.Call = 50 * time.Millisecond
	c, _ := newTestClient(t, tr)
	if !c.Connect(context.Background()) {
		t.Fatal("Connect() = false")
	}

	start := time.Now()
	result := c.CallTool(context.Background(), "slow", nil)
	if result.Kind != capability.KindTimeout {
		t.Errorf("Kind = %s, want timeout", result.Kind)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("CallTool() took %v, budget was 50ms", elapsed)
	}
}

func TestCapabilityClient_DisconnectDuringCall(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := newMockTransport("slow")
	tr.block = true
	tr.timeouts.Call = time.Minute
	c, _ := newTestClient(t, tr)
	if !c.Connect(context.Background()) {
		t.Fatal("Connect() = false")
	}

	done := make(chan *capability.ToolCallResult, 1)
	go func() {
		done <- c.CallTool(context.Background(), "slow", nil)
	}()

	// Wait for the call to reach the transport.
	deadline := time.Now().Add(2 * time.Second)
	for tr.io() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Disconnect()

	select {
	case result := <-done:
		if result.Success {
			t.Error("in-flight call succeeded after Disconnect")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("CallTool() still blocked after Disconnect")
	}
	if c.State() != capability.StateDisconnected {
		t.Errorf("State() = %s, want disconnected", c.State())
	}
}

func TestCapabilityClient_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)

	tr := newMockTransport("get_pods")
	f := &factoryOf{items: []*mockTransport{tr}}
	c := NewCapabilityClient(testServer, f.New, testLogger(), WithClientMetrics(m))

	if !c.Connect(context.Background()) {
		t.Fatal("Connect() = false")
	}
	c.CallTool(context.Background(), "get_pods", nil)
	c.CallTool(context.Background(), "missing", nil)

	if got := testutil.ToFloat64(m.ConnectsTotal.WithLabelValues("k8s", "ok")); got != 1 {
		t.Errorf("connects_total{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConnectedServers); got != 1 {
		t.Errorf("connected_servers = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("k8s", "get_pods", "ok")); got != 1 {
		t.Errorf("tool_calls_total{ok} = %v, want 1", got)
	}

	c.Disconnect()
	if got := testutil.ToFloat64(m.ConnectedServers); got != 0 {
		t.Errorf("connected_servers after Disconnect = %v, want 0", got)
	}
}
