// Package mcp exposes an arbor engine as an MCP server: a run_agent tool plus
// graph and info resources.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"
)

// Resource URIs.
const (
	GraphURI = "arbor://graph"
	InfoURI  = "arbor://info"
)

// RunResult is the structured output of run_agent.
type RunResult struct {
	RunID   string         `json:"run_id" jsonschema_description:"Identifier of the run"`
	Outputs map[string]any `json:"outputs" jsonschema_description:"The graph's declared outputs"`
	State   map[string]any `json:"state" jsonschema_description:"The final run state"`
}

// Engine is the part of arbor.Engine the MCP server needs.
type Engine interface {
	Run(ctx context.Context, inputs map[string]any, opts ...arbor.RunOption) (map[string]any, error)
	Inspect() arbor.Graphs
	Info() arbor.Info
}

// Server wraps an engine and exposes it as an MCP server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates an MCP server for engine.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		mcpServer: server.NewMCPServer("arbor-mcp", strings.TrimSpace(arbor.Version),
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on Stdin/Stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("shutdown signal received, stopping MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	info := s.engine.Info()
	desc := fmt.Sprintf("Run the %s agent. Required inputs: %s. Outputs: %s.",
		info.Name, strings.Join(info.Inputs, ", "), strings.Join(info.Outputs, ", "))

	runTool := mcp.NewTool("run_agent",
		mcp.WithDescription(desc),
		mcp.WithObject("inputs", mcp.Required(), mcp.Description("Run inputs keyed by name")),
		mcp.WithNumber("max_steps", mcp.Description("Optional cap on node executions")),
		mcp.WithOutputSchema[RunResult](),
	)
	s.mcpServer.AddTool(runTool, mcp.NewStructuredToolHandler(s.handleRun))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the compiled graphs for introspection."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := json.Marshal(s.engine.Inspect())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func (s *Server) handleRun(ctx context.Context, _ mcp.CallToolRequest, args map[string]any) (RunResult, error) {
	inputs, ok := args["inputs"].(map[string]any)
	if !ok {
		return RunResult{}, fmt.Errorf("inputs must be an object, got %T", args["inputs"])
	}

	var opts []arbor.RunOption
	if n := cast.ToInt(args["max_steps"]); n > 0 {
		opts = append(opts, arbor.WithMaxSteps(n))
	}

	runID := uuid.NewString()
	st, err := s.engine.Run(domain.ContextWithRunID(ctx, runID), inputs, opts...)
	if err != nil {
		s.logger.Warn("MCP run_agent failed", "run_id", runID, "err", err)
		return RunResult{}, fmt.Errorf("run failed: %w", err)
	}

	outputs := make(map[string]any)
	for _, key := range s.engine.Inspect().Root.Outputs {
		outputs[key] = st[key]
	}
	return RunResult{RunID: runID, Outputs: outputs, State: st}, nil
}

func (s *Server) registerResources() {
	s.addJSONResource(GraphURI, "Compiled Graph", func() any { return s.engine.Inspect() })
	s.addJSONResource(InfoURI, "Agent Info", func() any { return s.engine.Info() })
}

func (s *Server) addJSONResource(uri, name string, value func() any) {
	s.mcpServer.AddResource(mcp.NewResource(uri, name,
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(value())
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", uri, err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
