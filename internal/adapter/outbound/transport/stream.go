package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/capability"
	"github.com/SkySingh04/DreamOps-sub002/internal/port/outbound"
	"github.com/SkySingh04/DreamOps-sub002/pkg/mcp"
)

// streamPath is the discovery and call endpoint below the base URL.
const streamPath = "/mcp"

// sessionHeader carries the server-assigned session id.
const sessionHeader = "Mcp-Session-Id"

// Stream talks to a capability server over HTTP where each call is a POST
// answered with a server-sent event stream. The first parseable data event
// is the response; the rest of the stream is abandoned.
type Stream struct {
	name     string
	endpoint string
	apiKey   string
	static   []string
	opts     options

	mu        sync.Mutex
	sessionID string

	life  lifecycle
	reply reply
	seq   atomic.Int64
}

// NewStream creates a transport for the given stream server.
func NewStream(srv *capability.Server, opts ...Option) *Stream {
	o := buildOptions(opts)
	o.logger = o.logger.With("server", srv.Name, "transport", "stream")
	return &Stream{
		name:     srv.Name,
		endpoint: joinURL(srv.URL, streamPath),
		apiKey:   srv.APIKey,
		static:   append([]string(nil), srv.Tools...),
		opts:     o,
	}
}

// Open checks that the endpoint is reachable. 200 and 202 (a streaming
// session was accepted) count as success.
func (s *Stream) Open(ctx context.Context) error {
	if s.life.isClosed() {
		return errClosed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", capability.ErrConnection, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	setAuth(req, s.apiKey)

	resp, err := doRequest(s.opts.httpClient, req)
	if err != nil {
		return err
	}
	// Only the status matters; an event stream may never end on its own.
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%w: unexpected status %d", capability.ErrConnection, resp.StatusCode)
	}
	s.rememberSession(resp)
	return nil
}

// Discover returns the configured static tool list or, when none is
// configured, asks the server with an initialize handshake and tools/list.
func (s *Stream) Discover(ctx context.Context) ([]capability.ToolDescriptor, error) {
	if len(s.static) > 0 {
		return staticTools(s.static), nil
	}

	if err := initialize(ctx, s.roundTrip, s.seq.Add(1), s.opts); err != nil {
		return nil, err
	}
	note, err := mcp.NewNotification(mcp.MethodInitialized, nil)
	if err != nil {
		return nil, err
	}
	if err := s.Send(ctx, note); err != nil {
		return nil, err
	}
	return listTools(ctx, s.roundTrip, func() int64 { return s.seq.Add(1) })
}

func (s *Stream) roundTrip(ctx context.Context, req *mcp.Request) (*mcp.Response, error) {
	if err := s.Send(ctx, req); err != nil {
		return nil, err
	}
	return s.Receive(ctx)
}

// Send posts the request and reads the event stream until the response
// arrives. The response is returned by the next Receive.
func (s *Stream) Send(ctx context.Context, req *mcp.Request) error {
	if s.life.isClosed() {
		return errClosed
	}

	body, err := mcp.Encode(req)
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", capability.ErrProtocol, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", capability.ErrConnection, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	setAuth(httpReq, s.apiKey)
	if sid := s.session(); sid != "" {
		httpReq.Header.Set(sessionHeader, sid)
	}

	resp, err := doRequest(s.opts.httpClient, httpReq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		data, _ := readBody(ctx, resp.Body)
		return statusError(resp, data)
	}
	s.rememberSession(resp)

	if req.IsNotification() {
		return nil
	}

	reply, err := s.readResponse(ctx, resp, req.ID)
	if err != nil {
		return err
	}
	s.reply.set(reply)
	return nil
}

// readResponse extracts the response for the request id from the body. An
// event stream is scanned for data lines; a plain JSON body is decoded as is.
func (s *Stream) readResponse(ctx context.Context, resp *http.Response, id int64) (*mcp.Response, error) {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		data, err := readBody(ctx, resp.Body)
		if err != nil {
			return nil, err
		}
		reply, err := mcp.DecodeEventData(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", capability.ErrProtocol, err)
		}
		return reply, nil
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, scannerInitialBufSize), scannerMaxBufSize)
	skipped := 0
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		reply, err := mcp.DecodeEventData([]byte(data))
		if err != nil {
			skipped++
			s.opts.logger.Debug("skipping data line", "error", err, "data", truncate([]byte(data)))
			continue
		}
		if reply.ID != "" && !reply.MatchesID(id) {
			skipped++
			s.opts.logger.Debug("skipping response for another request", "id", reply.ID, "want", id)
			continue
		}
		return reply, nil
	}

	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, contextError(ctxErr)
		}
		return nil, fmt.Errorf("%w: read event stream: %v", capability.ErrConnection, err)
	}
	return nil, fmt.Errorf("%w: event stream ended without a response (%d data lines skipped)", capability.ErrProtocol, skipped)
}

// Receive returns the response read by the last Send.
func (s *Stream) Receive(ctx context.Context) (*mcp.Response, error) {
	if s.life.isClosed() {
		return nil, errClosed
	}
	return s.reply.take()
}

// Close ends the server session when one was assigned and releases idle
// connections. Safe to call more than once.
func (s *Stream) Close() error {
	if !s.life.markClosed() {
		return nil
	}
	defer s.opts.httpClient.CloseIdleConnections()

	sid := s.session()
	if sid == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("build session delete: %w", err)
	}
	req.Header.Set(sessionHeader, sid)
	setAuth(req, s.apiKey)

	resp, err := s.opts.httpClient.Do(req)
	if err != nil {
		// The server may already be gone; the session dies with it.
		s.opts.logger.Debug("session delete failed", "error", err)
		return nil
	}
	drain(resp.Body)
	if !isSuccess(resp.StatusCode) && resp.StatusCode != http.StatusMethodNotAllowed {
		s.opts.logger.Debug("session delete rejected", "status", resp.StatusCode)
	}
	return nil
}

// Timeouts returns the HTTP budgets.
func (s *Stream) Timeouts() outbound.Timeouts {
	return httpTimeouts
}

func (s *Stream) session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Stream) rememberSession(resp *http.Response) {
	sid := resp.Header.Get(sessionHeader)
	if sid == "" {
		return
	}
	s.mu.Lock()
	s.sessionID = sid
	s.mu.Unlock()
}

// Compile-time check that Stream implements Transport.
var _ outbound.Transport = (*Stream)(nil)
