package tools_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/tools"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(opts ...tools.Option) *registry.Registry {
	reg := registry.NewRegistry()
	tools.Register(reg, opts...)
	return reg
}

func TestBuiltins(t *testing.T) {
	ctx := context.Background()

	t.Run("Echo", func(t *testing.T) {
		out, err := tools.Echo(ctx, map[string]any{"json": map[string]any{"type": "list", "items": []any{1}}})
		require.NoError(t, err)
		env := out.(domain.ToolOutput)
		assert.Equal(t, 200, env["status"])
		assert.Equal(t, []any{1}, env["items"])
		assert.Equal(t, "list", env["json"].(map[string]any)["type"])
	})

	t.Run("Increment", func(t *testing.T) {
		out, err := tools.Increment(ctx, map[string]any{"current": 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), out.(domain.ToolOutput)["json"].(map[string]any)["count"])

		_, err = tools.Increment(ctx, map[string]any{"current": "x"})
		assert.Error(t, err)
	})

	t.Run("Failing", func(t *testing.T) {
		out, err := tools.Failing(ctx, map[string]any{})
		require.NoError(t, err)
		errBody := out.(domain.ToolOutput)["error"].(map[string]any)
		assert.Equal(t, "test_failure", errBody["type"])
		assert.Equal(t, 500, errBody["status"])
	})
}

func TestParseObject(t *testing.T) {
	tests := []struct {
		name string
		text string
		want any
	}{
		{"Plain", `{"a": 1}`, map[string]any{"a": float64(1)}},
		{"Fenced", "```json\n{\"a\": 2}\n```", map[string]any{"a": float64(2)}},
		{"Repaired", `{'a': 3,}`, map[string]any{"a": float64(3)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tools.ParseObject(context.Background(), map[string]any{"text": tt.text})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.(domain.ToolOutput)["json"])
		})
	}

	_, err := tools.ParseObject(context.Background(), map[string]any{"text": 5})
	assert.Error(t, err)
}

func TestHTTPRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"method":  r.Method,
			"q":       r.URL.Query().Get("q"),
			"header":  r.Header.Get("X-Test"),
			"body":    body,
			"results": []any{"a", "b"},
		})
	}))
	defer srv.Close()

	out, err := tools.HTTPRequest(context.Background(), map[string]any{
		"method":  "post",
		"url":     srv.URL,
		"params":  map[string]any{"q": "arbor"},
		"headers": map[string]any{"X-Test": "yes"},
		"json":    map[string]any{"k": "v"},
	})
	require.NoError(t, err)
	env := out.(domain.ToolOutput)
	assert.Equal(t, 200, env["status"])
	assert.Nil(t, env["error"])

	payload := env["json"].(map[string]any)
	assert.Equal(t, "POST", payload["method"])
	assert.Equal(t, "arbor", payload["q"])
	assert.Equal(t, "yes", payload["header"])
	assert.Equal(t, map[string]any{"k": "v"}, payload["body"])
	assert.Equal(t, []any{"a", "b"}, env["items"])

	t.Run("Transport failure", func(t *testing.T) {
		out, err := tools.HTTPRequest(context.Background(), map[string]any{"url": "http://127.0.0.1:1"})
		require.NoError(t, err)
		assert.Equal(t, "http_error", out.(domain.ToolOutput)["error"].(map[string]any)["type"])
	})

	t.Run("Missing url", func(t *testing.T) {
		_, err := tools.HTTPRequest(context.Background(), map[string]any{})
		assert.ErrorContains(t, err, "url is required")
	})
}

func TestProcessTool(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	reg := newRegistry(tools.WithProcesses(map[string]tools.ProcessConfig{
		"greet": {Name: "greet", Command: "sh", Args: []string{"-c", `echo "{\"hello\": \"$ARBOR_ARG_NAME\"}"`}},
	}))

	handles, err := reg.Build([]config.Tool{
		{ID: "greet", Kind: "process", Impl: "greet"},
		{ID: "fail", Kind: "process", Config: map[string]any{"command": "sh", "args": []any{"-c", "echo oops >&2; exit 3"}}},
	})
	require.NoError(t, err)

	out, err := handles["greet"].Func(context.Background(), map[string]any{"name": "arbor"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"hello": "arbor"}, out)

	out, err = handles["fail"].Func(context.Background(), nil)
	require.NoError(t, err)
	errBody := out.(domain.ToolOutput)["error"].(map[string]any)
	assert.Equal(t, "process_error", errBody["type"])
	assert.Equal(t, 3, errBody["status"])
	assert.Contains(t, errBody["message"], "oops")

	_, err = reg.Build([]config.Tool{{ID: "x", Kind: "process", Impl: "unknown"}})
	var cfgErr *domain.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadProcessTools(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tools:\n  - name: list\n    command: ls\n    args: [\"-la\"]\n"), 0o600))

	procs, err := tools.LoadProcessTools(path)
	require.NoError(t, err)
	require.Contains(t, procs, "list")
	assert.Equal(t, []string{"-la"}, procs["list"].Args)

	procs, err = tools.LoadProcessTools(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, procs)
}

func inProcessConnector(t *testing.T) tools.MCPConnector {
	srv := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(false))
	srv.AddTool(mcp.NewTool("shout", mcp.WithString("word", mcp.Required())),
		func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			word, _ := req.GetArguments()["word"].(string)
			if word == "" {
				return mcp.NewToolResultError("word is empty"), nil
			}
			return mcp.NewToolResultText(`{"loud": "` + word + `!"}`), nil
		})

	return func(ctx context.Context, _ tools.MCPServerConfig) (tools.MCPSession, error) {
		c, err := client.NewInProcessClient(srv)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			return nil, err
		}
		if err := tools.Initialize(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func TestMCPTool(t *testing.T) {
	reg := newRegistry(tools.WithMCPConnector(inProcessConnector(t)))
	handles, err := reg.Build([]config.Tool{
		{ID: "shout", Kind: "mcp", Impl: "mcp:shout", Config: map[string]any{"command": "unused"}},
	})
	require.NoError(t, err)

	out, err := handles["shout"].Func(context.Background(), map[string]any{"word": "hey", "command": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"loud": "hey!"}, out)

	out, err = handles["shout"].Func(context.Background(), map[string]any{"word": ""})
	require.NoError(t, err)
	assert.Equal(t, "mcp_tool_error", out.(domain.ToolOutput)["error"].(map[string]any)["type"])
}
