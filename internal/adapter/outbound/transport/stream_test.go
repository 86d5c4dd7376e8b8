package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/capability"
	"github.com/SkySingh04/DreamOps-sub002/pkg/mcp"
)

// sseServer answers POST /mcp with the lines produced by respond, written as
// an event stream. GET /mcp answers with openStatus.
type sseServer struct {
	openStatus int
	respond    func(req map[string]any) []string
	hold       bool // keep the stream open after the lines

	mu       sync.Mutex
	sessions []string
	auth     []string
	deleted  bool
}

func (s *sseServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.sessions = append(s.sessions, r.Header.Get(sessionHeader))
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	s.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		w.Header().Set(sessionHeader, "sess-1")
		w.WriteHeader(s.openStatus)
	case http.MethodDelete:
		s.mu.Lock()
		s.deleted = true
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPost:
		if r.Header.Get("Accept") != "text/event-stream" {
			http.Error(w, "want event stream", http.StatusNotAcceptable)
			return
		}
		var req map[string]any
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if _, ok := req["id"]; !ok {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, line := range s.respond(req) {
			fmt.Fprintf(w, "%s\n\n", line)
			if flusher != nil {
				flusher.Flush()
			}
		}
		if s.hold {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func rpcLine(id any, result string) string {
	idJSON, _ := json.Marshal(id)
	return fmt.Sprintf(`data: {"jsonrpc":"2.0","id":%s,"result":%s}`, idJSON, result)
}

func newStreamFor(t *testing.T, h http.Handler, tools ...string) (*Stream, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	s := NewStream(&capability.Server{
		Name:   "k8s",
		Type:   capability.ServerTypeStream,
		URL:    ts.URL + "/",
		APIKey: "secret",
		Tools:  tools,
	}, WithLogger(discardLogger()), WithHTTPClient(ts.Client()))
	t.Cleanup(func() { _ = s.Close() })
	return s, ts
}

func TestStream_Open(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"accepted", http.StatusAccepted, false},
		{"not found", http.StatusNotFound, true},
		{"server error", http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newStreamFor(t, &sseServer{openStatus: tt.status})
			err := s.Open(context.Background())
			if tt.wantErr {
				if !errors.Is(err, capability.ErrConnection) {
					t.Fatalf("Open() error = %v, want ErrConnection", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
		})
	}
}

func TestStream_Open_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	s := NewStream(&capability.Server{Name: "gone", Type: capability.ServerTypeStream, URL: url},
		WithLogger(discardLogger()))
	defer func() { _ = s.Close() }()

	if err := s.Open(context.Background()); !errors.Is(err, capability.ErrConnection) {
		t.Fatalf("Open() error = %v, want ErrConnection", err)
	}
}

func TestStream_FirstParseableDataLineWins(t *testing.T) {
	srv := &sseServer{
		openStatus: http.StatusAccepted,
		hold:       true,
		respond: func(req map[string]any) []string {
			return []string{
				"event: message",
				"data: {not json",
				rpcLine(req["id"], `{"content":[{"type":"text","text":"first"}]}`),
				rpcLine(req["id"], `{"content":[{"type":"text","text":"second"}]}`),
			}
		},
	}
	s, _ := newStreamFor(t, srv, "get_pods")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	req, err := mcp.NewToolCall(7, "get_pods", map[string]any{"namespace": "default"})
	if err != nil {
		t.Fatalf("NewToolCall() error = %v", err)
	}
	if err := s.Send(ctx, req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	resp, err := s.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !strings.Contains(string(resp.Result), "first") {
		t.Errorf("Result = %s, want the first data line", resp.Result)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if got := srv.sessions[len(srv.sessions)-1]; got != "sess-1" {
		t.Errorf("session header = %q, want sess-1", got)
	}
	if got := srv.auth[len(srv.auth)-1]; got != "Bearer secret" {
		t.Errorf("Authorization = %q, want Bearer secret", got)
	}
}

func TestStream_SkipsOtherRequestIDs(t *testing.T) {
	srv := &sseServer{
		openStatus: http.StatusOK,
		respond: func(req map[string]any) []string {
			return []string{
				rpcLine(999, `{"content":[]}`),
				rpcLine(req["id"], `{"content":[{"type":"text","text":"mine"}]}`),
			}
		},
	}
	s, _ := newStreamFor(t, srv, "get_pods")

	req, _ := mcp.NewToolCall(3, "get_pods", nil)
	if err := s.Send(context.Background(), req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	resp, err := s.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !resp.MatchesID(3) {
		t.Errorf("ID = %q, want 3", resp.ID)
	}
}

func TestStream_BareDataPayload(t *testing.T) {
	srv := &sseServer{
		openStatus: http.StatusOK,
		respond: func(map[string]any) []string {
			return []string{`data: {"pods":["a","b"]}`}
		},
	}
	s, _ := newStreamFor(t, srv, "get_pods")

	req, _ := mcp.NewToolCall(1, "get_pods", nil)
	if err := s.Send(context.Background(), req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	resp, _ := s.Receive(context.Background())
	content, errMsg := capability.NormalizeResponse(resp)
	if errMsg != "" {
		t.Fatalf("NormalizeResponse() error = %q", errMsg)
	}
	if len(content) != 1 {
		t.Fatalf("len(content) = %d, want 1", len(content))
	}
}

func TestStream_NoParseableData(t *testing.T) {
	srv := &sseServer{
		openStatus: http.StatusOK,
		respond: func(map[string]any) []string {
			return []string{": keepalive", "data: nope", "data: {broken"}
		},
	}
	s, _ := newStreamFor(t, srv, "get_pods")

	req, _ := mcp.NewToolCall(1, "get_pods", nil)
	err := s.Send(context.Background(), req)
	if !errors.Is(err, capability.ErrProtocol) {
		t.Fatalf("Send() error = %v, want ErrProtocol", err)
	}
}

func TestStream_BadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer ts.Close()

	s := NewStream(&capability.Server{Name: "k8s", Type: capability.ServerTypeStream, URL: ts.URL, Tools: []string{"x"}},
		WithLogger(discardLogger()))
	defer func() { _ = s.Close() }()

	req, _ := mcp.NewToolCall(1, "x", nil)
	err := s.Send(context.Background(), req)
	if !errors.Is(err, capability.ErrConnection) {
		t.Fatalf("Send() error = %v, want ErrConnection", err)
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error %q does not mention the status", err)
	}
}

func TestStream_CallTimeout(t *testing.T) {
	srv := &sseServer{
		openStatus: http.StatusOK,
		hold:       true,
		respond:    func(map[string]any) []string { return []string{": waiting"} },
	}
	s, _ := newStreamFor(t, srv, "slow")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req, _ := mcp.NewToolCall(1, "slow", nil)
	err := s.Send(ctx, req)
	if !errors.Is(err, capability.ErrTimeout) {
		t.Fatalf("Send() error = %v, want ErrTimeout", err)
	}
}

func TestStream_DiscoverStatic(t *testing.T) {
	s, _ := newStreamFor(t, &sseServer{openStatus: http.StatusOK}, "get_pods", "get_logs")

	tools, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(tools) != 2 || tools[0].Name != "get_pods" || tools[1].Name != "get_logs" {
		t.Errorf("Discover() = %v", tools)
	}
}

func TestStream_DiscoverHandshake(t *testing.T) {
	var mu sync.Mutex
	var methods []string
	srv := &sseServer{
		openStatus: http.StatusOK,
		respond: func(req map[string]any) []string {
			method, _ := req["method"].(string)
			mu.Lock()
			methods = append(methods, method)
			mu.Unlock()
			switch method {
			case mcp.MethodInitialize:
				return []string{rpcLine(req["id"], `{"protocolVersion":"2025-06-18","capabilities":{}}`)}
			case mcp.MethodToolsList:
				return []string{rpcLine(req["id"], `{"tools":[{"name":"get_pods","description":"List pods"}]}`)}
			}
			return nil
		},
	}
	s, _ := newStreamFor(t, srv)

	tools, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "get_pods" || tools[0].Description != "List pods" {
		t.Errorf("Discover() = %v", tools)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{mcp.MethodInitialize, mcp.MethodToolsList}
	if strings.Join(methods, ",") != strings.Join(want, ",") {
		t.Errorf("methods = %v, want %v", methods, want)
	}
}

func TestStream_CloseDeletesSession(t *testing.T) {
	srv := &sseServer{openStatus: http.StatusOK}
	s, _ := newStreamFor(t, srv, "x")

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	srv.mu.Lock()
	deleted := srv.deleted
	srv.mu.Unlock()
	if !deleted {
		t.Error("session was not deleted on Close")
	}

	req, _ := mcp.NewToolCall(1, "x", nil)
	if err := s.Send(context.Background(), req); !errors.Is(err, capability.ErrChannelClosed) {
		t.Errorf("Send() after Close error = %v, want ErrChannelClosed", err)
	}
}

func TestStream_ReceiveWithoutSend(t *testing.T) {
	s, _ := newStreamFor(t, &sseServer{openStatus: http.StatusOK}, "x")

	if _, err := s.Receive(context.Background()); !errors.Is(err, capability.ErrProtocol) {
		t.Errorf("Receive() error = %v, want ErrProtocol", err)
	}
}

func TestNew_SelectsVariant(t *testing.T) {
	tests := []struct {
		srv  capability.Server
		want string
	}{
		{capability.Server{Name: "p", Type: capability.ServerTypeProcess, Command: "true"}, "*transport.Process"},
		{capability.Server{Name: "s", Type: capability.ServerTypeStream, URL: "http://localhost"}, "*transport.Stream"},
		{capability.Server{Name: "r", Type: capability.ServerTypeREST, URL: "http://localhost"}, "*transport.REST"},
	}
	for _, tt := range tests {
		tr, err := New(&tt.srv, WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("New(%s) error = %v", tt.srv.Type, err)
		}
		if got := fmt.Sprintf("%T", tr); got != tt.want {
			t.Errorf("New(%s) = %s, want %s", tt.srv.Type, got, tt.want)
		}
		_ = tr.Close()
	}

	if _, err := New(&capability.Server{Name: "x", Type: "carrier-pigeon"}); err == nil {
		t.Error("New() with unknown type should fail")
	}
}

func TestTimeouts(t *testing.T) {
	p := NewProcess(&capability.Server{Name: "p", Command: "true"})
	if got := p.Timeouts(); got.Connect != 10*time.Second || got.Call != 10*time.Second {
		t.Errorf("process Timeouts() = %+v", got)
	}
	s := NewStream(&capability.Server{Name: "s", URL: "http://localhost"})
	if got := s.Timeouts(); got.Connect != 5*time.Second || got.Call != 30*time.Second {
		t.Errorf("stream Timeouts() = %+v", got)
	}
	r := NewREST(&capability.Server{Name: "r", URL: "http://localhost"})
	if got := r.Timeouts(); got != s.Timeouts() {
		t.Errorf("rest Timeouts() = %+v, want %+v", got, s.Timeouts())
	}
}
