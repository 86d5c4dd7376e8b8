package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/capability"
	"github.com/SkySingh04/DreamOps-sub002/pkg/mcp"
)

// reply holds the response of the last exchange for the HTTP variants,
// where the request and its response travel in one round trip.
type reply struct {
	mu   sync.Mutex
	resp *mcp.Response
	ok   bool
}

func (r *reply) set(resp *mcp.Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resp, r.ok = resp, true
}

func (r *reply) take() (*mcp.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ok {
		return nil, fmt.Errorf("%w: no request in flight", capability.ErrProtocol)
	}
	resp := r.resp
	r.resp, r.ok = nil, false
	return resp, nil
}

// lifecycle tracks whether an HTTP transport has been closed.
type lifecycle struct {
	mu     sync.Mutex
	closed bool
}

func (l *lifecycle) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// markClosed returns false when the transport was already closed.
func (l *lifecycle) markClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.closed = true
	return true
}

var errClosed = fmt.Errorf("%w: %w", capability.ErrConnection, capability.ErrChannelClosed)

// joinURL appends a path to a base URL without doubling slashes.
func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// setAuth adds the bearer API key when one is configured.
func setAuth(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

// doRequest sends req and maps transport failures onto the taxonomy.
func doRequest(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, contextError(ctxErr)
		}
		return nil, fmt.Errorf("%w: %s %s: %v", capability.ErrConnection, req.Method, req.URL.Redacted(), err)
	}
	return resp, nil
}

// readBody reads a bounded response body.
func readBody(ctx context.Context, body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxResponseBodySize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, contextError(ctxErr)
		}
		return nil, fmt.Errorf("%w: read body: %v", capability.ErrConnection, err)
	}
	return data, nil
}

// statusError describes a non-success HTTP status.
func statusError(resp *http.Response, body []byte) error {
	snippet := strings.TrimSpace(truncate(body))
	if snippet == "" {
		return fmt.Errorf("%w: unexpected status %d", capability.ErrConnection, resp.StatusCode)
	}
	return fmt.Errorf("%w: unexpected status %d: %s", capability.ErrConnection, resp.StatusCode, snippet)
}

// drain discards what is left of a body so the connection can be reused.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
