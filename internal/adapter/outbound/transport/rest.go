package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/capability"
	"github.com/SkySingh04/DreamOps-sub002/internal/port/outbound"
	"github.com/SkySingh04/DreamOps-sub002/pkg/mcp"
)

const toolsPath = "/tools"

// REST talks to a capability server exposing plain list and call endpoints:
// GET {base}/tools and POST {base}/tools/{name}.
type REST struct {
	base   string
	apiKey string
	opts   options

	mu    sync.Mutex
	tools []capability.ToolDescriptor

	life  lifecycle
	reply reply
}

// NewREST creates a transport for the given REST server.
func NewREST(srv *capability.Server, opts ...Option) *REST {
	o := buildOptions(opts)
	o.logger = o.logger.With("server", srv.Name, "transport", "rest")
	return &REST{
		base:   srv.URL,
		apiKey: srv.APIKey,
		opts:   o,
	}
}

// toolList accepts both plain names and {name, description} objects.
type toolList struct {
	Tools []json.RawMessage `json:"tools"`
}

// Open fetches the tool list. The endpoint doubles as the liveness check.
func (r *REST) Open(ctx context.Context) error {
	if r.life.isClosed() {
		return errClosed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, joinURL(r.base, toolsPath), nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", capability.ErrConnection, err)
	}
	req.Header.Set("Accept", "application/json")
	setAuth(req, r.apiKey)

	resp, err := doRequest(r.opts.httpClient, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := readBody(ctx, resp.Body)
	if err != nil {
		return err
	}
	if !isSuccess(resp.StatusCode) {
		return statusError(resp, data)
	}

	tools, err := parseToolList(data)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.tools = tools
	r.mu.Unlock()
	r.opts.logger.Debug("tool list fetched", "tools", len(tools))
	return nil
}

func parseToolList(data []byte) ([]capability.ToolDescriptor, error) {
	var list toolList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: decode tool list: %v", capability.ErrProtocol, err)
	}

	tools := make([]capability.ToolDescriptor, 0, len(list.Tools))
	for i, raw := range list.Tools {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			tools = append(tools, capability.ToolDescriptor{Name: name})
			continue
		}
		var obj struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil || obj.Name == "" {
			return nil, fmt.Errorf("%w: tools[%d] is neither a name nor a tool object", capability.ErrProtocol, i)
		}
		tools = append(tools, capability.ToolDescriptor{Name: obj.Name, Description: obj.Description})
	}
	return tools, nil
}

// Discover returns the list fetched by Open.
func (r *REST) Discover(ctx context.Context) ([]capability.ToolDescriptor, error) {
	if r.life.isClosed() {
		return nil, errClosed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capability.ToolDescriptor(nil), r.tools...), nil
}

// Send posts the tool arguments of a tools/call request to the tool's
// endpoint. The decoded body is returned by the next Receive.
func (r *REST) Send(ctx context.Context, req *mcp.Request) error {
	if r.life.isClosed() {
		return errClosed
	}

	call, err := req.ToolCall()
	if err != nil {
		return fmt.Errorf("%w: %v", capability.ErrProtocol, err)
	}
	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: encode arguments: %v", capability.ErrProtocol, err)
	}

	endpoint := joinURL(r.base, toolsPath+"/"+url.PathEscape(call.Name))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", capability.ErrConnection, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	setAuth(httpReq, r.apiKey)

	resp, err := doRequest(r.opts.httpClient, httpReq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := readBody(ctx, resp.Body)
	if err != nil {
		return err
	}

	if !isSuccess(resp.StatusCode) {
		// A server that explains the failure in an error body reported a
		// tool error, not a broken connection.
		if decoded, derr := mcp.DecodeBody(data); derr == nil && decoded.Error != nil {
			r.reply.set(decoded)
			return nil
		}
		return statusError(resp, data)
	}

	decoded, err := mcp.DecodeBody(data)
	if err != nil {
		return fmt.Errorf("%w: %v: %s", capability.ErrProtocol, err, truncate(data))
	}
	r.reply.set(decoded)
	return nil
}

// Receive returns the response read by the last Send.
func (r *REST) Receive(ctx context.Context) (*mcp.Response, error) {
	if r.life.isClosed() {
		return nil, errClosed
	}
	return r.reply.take()
}

// Close releases idle connections. Safe to call more than once.
func (r *REST) Close() error {
	if r.life.markClosed() {
		r.opts.httpClient.CloseIdleConnections()
	}
	return nil
}

// Timeouts returns the HTTP budgets.
func (r *REST) Timeouts() outbound.Timeouts {
	return httpTimeouts
}

// Compile-time check that REST implements Transport.
var _ outbound.Transport = (*REST)(nil)
