// Package mcp provides the JSON-RPC envelope types exchanged with capability
// servers and codec helpers built on the MCP SDK's jsonrpc package.
package mcp

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Method names used by the capability client.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

// ProtocolVersion is the MCP revision advertised during the initialize handshake.
const ProtocolVersion = "2025-06-18"

// Request is an outbound JSON-RPC request. A zero ID marks a notification.
type Request struct {
	ID     int64
	Method string
	Params json.RawMessage
}

// ToolCallParams is the params object of a tools/call request.
type ToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// NewRequest builds a request with the given id, marshalling params to JSON.
// A nil params value produces a request without params.
func NewRequest(id int64, method string, params any) (*Request, error) {
	req := &Request{ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal %s params: %w", method, err)
		}
		req.Params = raw
	}
	return req, nil
}

// NewNotification builds a notification (no id, no reply expected).
func NewNotification(method string, params any) (*Request, error) {
	return NewRequest(0, method, params)
}

// NewToolCall builds a tools/call request for the named tool.
func NewToolCall(id int64, name string, args map[string]any) (*Request, error) {
	return NewRequest(id, MethodToolsCall, ToolCallParams{Name: name, Arguments: args})
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return r.ID == 0
}

// ToolCall decodes the params of a tools/call request.
func (r *Request) ToolCall() (*ToolCallParams, error) {
	if r.Method != MethodToolsCall {
		return nil, fmt.Errorf("method %q is not %s", r.Method, MethodToolsCall)
	}
	var p ToolCallParams
	if len(r.Params) > 0 {
		if err := json.Unmarshal(r.Params, &p); err != nil {
			return nil, fmt.Errorf("decode tools/call params: %w", err)
		}
	}
	if p.Name == "" {
		return nil, fmt.Errorf("tools/call params missing name")
	}
	return &p, nil
}

// RPCError is an error object reported by a capability server.
type RPCError struct {
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	if e.Code == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Response is a decoded reply from a capability server, whatever the
// transport. ID holds the canonical text of the JSON-RPC id, empty for
// transports without ids.
type Response struct {
	ID     string
	Result json.RawMessage
	Error  *RPCError
}

// MatchesID reports whether the response answers the request with the given id.
func (r *Response) MatchesID(id int64) bool {
	return r.ID == strconv.FormatInt(id, 10)
}
