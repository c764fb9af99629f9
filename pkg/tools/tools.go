// Package tools provides the built-in tool implementations and the factories
// for process, http and mcp tool kinds.
package tools

import (
	"context"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/spf13/cast"
)

// Builtin implementation names.
const (
	EchoName        = "echo"
	IncrementName   = "increment"
	FailingName     = "failing"
	HTTPRequestName = "http.request"
	ParseObjectName = "json.parse_object"
)

type options struct {
	processes map[string]ProcessConfig
	connect   MCPConnector
}

// Option configures Register.
type Option func(*options)

// WithProcesses allow-lists commands that process tools reference by impl name.
func WithProcesses(procs map[string]ProcessConfig) Option {
	return func(o *options) {
		for name, p := range procs {
			o.processes[name] = p
		}
	}
}

// WithMCPConnector replaces how mcp tools reach their server.
func WithMCPConnector(c MCPConnector) Option {
	return func(o *options) {
		o.connect = c
	}
}

// Register installs every built-in implementation and the process, http and
// mcp kind factories into reg.
func Register(reg *registry.Registry, opts ...Option) {
	o := &options{processes: make(map[string]ProcessConfig), connect: StdioConnector}
	for _, opt := range opts {
		opt(o)
	}

	reg.Register(EchoName, Echo)
	reg.Register(IncrementName, Increment)
	reg.Register(FailingName, Failing)
	reg.Register(HTTPRequestName, HTTPRequest)
	reg.Register(ParseObjectName, ParseObject)

	reg.RegisterKind("http", httpFactory)
	reg.RegisterKind("process", processFactory(o.processes))
	reg.RegisterKind("mcp", mcpFactory(o.connect))
}

// Echo returns its payload. A "json" argument replaces the payload as the json body.
func Echo(_ context.Context, args map[string]any) (any, error) {
	var body any = args
	if j, ok := args[domain.KeyJSON]; ok {
		body = j
	}
	items := args[domain.KeyItems]
	if items == nil {
		if m, ok := body.(map[string]any); ok {
			items = m[domain.KeyItems]
		}
	}
	status := 200
	if s, ok := args[domain.KeyStatus]; ok {
		status = cast.ToInt(s)
	}
	return domain.ToolOutput{
		domain.KeyStatus: status,
		domain.KeyJSON:   body,
		domain.KeyText:   args[domain.KeyText],
		domain.KeyItems:  items,
		domain.KeyResult: body,
		domain.KeyError:  nil,
	}, nil
}

// Increment adds one to the "current" argument and returns {"count": n}.
func Increment(_ context.Context, args map[string]any) (any, error) {
	current, err := cast.ToInt64E(args["current"])
	if err != nil {
		return nil, fmt.Errorf("increment: current must be an integer: %w", err)
	}
	body := map[string]any{"count": current + 1}
	return domain.NewOutput(200, body, nil, nil, body), nil
}

// Failing always returns an error envelope. status, error_type and message
// customise it.
func Failing(_ context.Context, args map[string]any) (any, error) {
	status := 500
	if s, ok := args[domain.KeyStatus]; ok {
		status = cast.ToInt(s)
	}
	errType := "test_failure"
	if s, ok := args["error_type"].(string); ok && s != "" {
		errType = s
	}
	message := "intentional failure"
	if s, ok := args["message"].(string); ok && s != "" {
		message = s
	}
	return domain.ErrorOutput(errType, message, status), nil
}
