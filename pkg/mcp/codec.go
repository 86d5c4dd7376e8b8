package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

var (
	// ErrMalformed reports bytes that are not valid JSON.
	ErrMalformed = errors.New("malformed JSON")

	// ErrNotResponse reports a well-formed message that is a request or
	// notification rather than a response.
	ErrNotResponse = errors.New("message is not a response")
)

// Encode serializes a request to its JSON-RPC wire form, without a
// trailing newline.
func Encode(req *Request) ([]byte, error) {
	msg := &jsonrpc.Request{Method: req.Method, Params: req.Params}
	if !req.IsNotification() {
		id, err := jsonrpc.MakeID(float64(req.ID))
		if err != nil {
			return nil, fmt.Errorf("make id: %w", err)
		}
		msg.ID = id
	}
	return jsonrpc.EncodeMessage(msg)
}

// DecodeResponse parses one JSON-RPC message that must be a response.
func DecodeResponse(data []byte) (*Response, error) {
	if !json.Valid(data) {
		return nil, ErrMalformed
	}
	msg, err := jsonrpc.DecodeMessage(data)
	if err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	resp, ok := msg.(*jsonrpc.Response)
	if !ok {
		return nil, ErrNotResponse
	}
	return fromWire(resp), nil
}

// DecodeEventData parses the JSON carried by one server-sent event data line.
// JSON-RPC responses decode as such. Any other JSON value is taken as a bare
// result payload, with a top-level "error" member mapped to the error.
func DecodeEventData(data []byte) (*Response, error) {
	if !json.Valid(data) {
		return nil, ErrMalformed
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return &Response{Result: append(json.RawMessage(nil), data...)}, nil
	}
	if _, ok := probe["method"]; ok {
		return nil, ErrNotResponse
	}
	if _, ok := probe["jsonrpc"]; ok {
		return DecodeResponse(data)
	}
	return bareResponse(probe, data), nil
}

// DecodeBody parses a plain JSON response body such as {content:[...]} or
// {error:"..."}.
func DecodeBody(data []byte) (*Response, error) {
	if !json.Valid(data) {
		return nil, ErrMalformed
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return &Response{Result: append(json.RawMessage(nil), data...)}, nil
	}
	return bareResponse(probe, data), nil
}

func bareResponse(probe map[string]json.RawMessage, data []byte) *Response {
	raw, ok := probe["error"]
	if !ok || string(raw) == "null" {
		if result, ok := probe["result"]; ok {
			return &Response{Result: result}
		}
		return &Response{Result: append(json.RawMessage(nil), data...)}
	}

	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return &Response{Error: &RPCError{Message: msg}}
	}
	var obj struct {
		Code    int64  `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return &Response{Error: &RPCError{Code: obj.Code, Message: obj.Message}}
	}
	return &Response{Error: &RPCError{Message: string(raw)}}
}

func fromWire(resp *jsonrpc.Response) *Response {
	out := &Response{Result: resp.Result}
	if resp.ID.IsValid() {
		out.ID = fmt.Sprint(resp.ID.Raw())
	}
	if resp.Error != nil {
		var wire *jsonrpc.Error
		if errors.As(resp.Error, &wire) {
			out.Error = &RPCError{Code: wire.Code, Message: wire.Message}
		} else {
			out.Error = &RPCError{Message: resp.Error.Error()}
		}
	}
	return out
}
