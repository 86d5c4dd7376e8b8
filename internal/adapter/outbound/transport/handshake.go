package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/capability"
	"github.com/SkySingh04/DreamOps-sub002/pkg/mcp"
)

// roundTripper sends one request and waits for its response.
type roundTripper func(ctx context.Context, req *mcp.Request) (*mcp.Response, error)

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      clientInfo     `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// initialize performs the MCP initialize request and returns once the
// server accepted it. The caller sends the initialized notification.
func initialize(ctx context.Context, rt roundTripper, id int64, o options) error {
	req, err := mcp.NewRequest(id, mcp.MethodInitialize, initializeParams{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: o.clientName, Version: o.clientVersion},
	})
	if err != nil {
		return err
	}
	resp, err := rt(ctx, req)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%w: initialize rejected: %s", capability.ErrConnection, resp.Error.Error())
	}
	return nil
}

type toolsListResult struct {
	Tools []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"tools"`
	NextCursor string `json:"nextCursor"`
}

// listTools pages through tools/list until the server stops returning a
// cursor or the per-server limit is reached.
func listTools(ctx context.Context, rt roundTripper, nextID func() int64) ([]capability.ToolDescriptor, error) {
	var tools []capability.ToolDescriptor
	cursor := ""
	for {
		var params any
		if cursor != "" {
			params = map[string]string{"cursor": cursor}
		}
		req, err := mcp.NewRequest(nextID(), mcp.MethodToolsList, params)
		if err != nil {
			return nil, err
		}
		resp, err := rt(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("tools/list: %w", err)
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%w: tools/list rejected: %s", capability.ErrConnection, resp.Error.Error())
		}

		var result toolsListResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("%w: decode tools/list result: %v", capability.ErrProtocol, err)
		}
		for _, t := range result.Tools {
			tools = append(tools, capability.ToolDescriptor{Name: t.Name, Description: t.Description})
		}

		if result.NextCursor == "" || result.NextCursor == cursor || len(tools) >= capability.MaxToolsPerServer {
			return tools, nil
		}
		cursor = result.NextCursor
	}
}

// staticTools converts a configured name list to descriptors.
func staticTools(names []string) []capability.ToolDescriptor {
	tools := make([]capability.ToolDescriptor, 0, len(names))
	for _, n := range names {
		tools = append(tools, capability.ToolDescriptor{Name: n})
	}
	return tools
}
