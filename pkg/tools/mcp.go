package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"
)

// MCPServerConfig locates the MCP server behind an mcp tool.
type MCPServerConfig struct {
	Command string
	Args    []string
	Env     []string
}

// MCPSession is the part of an MCP client an mcp tool needs.
type MCPSession interface {
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// MCPConnector opens an initialized session to the server.
type MCPConnector func(ctx context.Context, server MCPServerConfig) (MCPSession, error)

// StdioConnector spawns the server command and speaks MCP over its stdio.
func StdioConnector(ctx context.Context, server MCPServerConfig) (MCPSession, error) {
	if server.Command == "" {
		return nil, fmt.Errorf("mcp server command is required")
	}
	c, err := client.NewStdioMCPClient(server.Command, server.Env, server.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to start mcp server: %w", err)
	}
	if err := Initialize(ctx, c); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Initialize performs the MCP handshake on c.
func Initialize(ctx context.Context, c *client.Client) error {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "arbor", Version: "1"}
	if _, err := c.Initialize(ctx, req); err != nil {
		return fmt.Errorf("mcp initialize failed: %w", err)
	}
	return nil
}

var mcpConfigKeys = map[string]bool{"command": true, "args": true, "env": true, "tool": true}

func mcpFactory(connect MCPConnector) registry.Factory {
	return func(t config.Tool) (registry.ToolFunction, error) {
		remote := cast.ToString(t.Config["tool"])
		if remote == "" {
			remote = registry.ImplName(t.Impl)
		}
		if remote == "" {
			return nil, fmt.Errorf("mcp tool needs a remote tool name in impl or config.tool")
		}
		server := MCPServerConfig{
			Command: cast.ToString(t.Config["command"]),
			Args:    cast.ToStringSlice(t.Config["args"]),
		}
		for k, v := range cast.ToStringMapString(t.Config["env"]) {
			server.Env = append(server.Env, k+"="+v)
		}
		return NewMCPTool(connect, server, remote), nil
	}
}

// NewMCPTool calls the remote tool named remote on a fresh session per call.
// Server-side failures become an mcp_error envelope.
func NewMCPTool(connect MCPConnector, server MCPServerConfig, remote string) registry.ToolFunction {
	return func(ctx context.Context, args map[string]any) (any, error) {
		session, err := connect(ctx, server)
		if err != nil {
			return domain.ErrorOutput("mcp_connect_error", err.Error(), 0), nil
		}
		defer session.Close()

		arguments := make(map[string]any, len(args))
		for k, v := range args {
			if mcpConfigKeys[k] || k == domain.KeyTimeout {
				continue
			}
			arguments[k] = v
		}

		req := mcp.CallToolRequest{}
		req.Params.Name = remote
		req.Params.Arguments = arguments

		res, err := session.CallTool(ctx, req)
		if err != nil {
			return domain.ErrorOutput("mcp_error", err.Error(), 0), nil
		}
		text := contentText(res.Content)
		if res.IsError {
			return domain.ErrorOutput("mcp_tool_error", text, 0), nil
		}

		if res.StructuredContent != nil {
			return normalizeJSON(res.StructuredContent), nil
		}
		if looksLikeJSON(text) {
			var parsed any
			if err := json.Unmarshal([]byte(text), &parsed); err == nil {
				return parsed, nil
			}
		}
		return text, nil
	}
}

func contentText(contents []mcp.Content) string {
	var parts []string
	for _, c := range contents {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// normalizeJSON round-trips v through JSON so structs become plain maps.
func normalizeJSON(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
