package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSessionNotFound is returned when a memory session cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrStepsExceeded is returned when a run visits more nodes than its step budget allows.
var ErrStepsExceeded = errors.New("max steps exceeded")

// ErrSubgraphDepthExceeded is returned when subgraph nesting goes past the configured depth.
var ErrSubgraphDepthExceeded = errors.New("max subgraph depth exceeded")

// ErrLoopExhausted is returned when a loop reaches max_iterations without its until condition holding.
var ErrLoopExhausted = errors.New("loop exceeded max_iterations")

// ConfigError reports a misconfigured agent: unknown references, cycles, missing inputs,
// malformed conditions, unsupported kinds. It is never retried.
type ConfigError struct {
	Msg string
	Err error
}

// NewConfigError formats a ConfigError. A %w verb keeps the wrapped error reachable.
func NewConfigError(format string, args ...any) *ConfigError {
	err := fmt.Errorf(format, args...)
	return &ConfigError{Msg: err.Error(), Err: errors.Unwrap(err)}
}

func (e *ConfigError) Error() string {
	return e.Msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// RunError aborts the whole run. Err is one of the run sentinels.
type RunError struct {
	Err error
	Msg string
}

// NewRunError builds a RunError around a sentinel.
func NewRunError(sentinel error, format string, args ...any) *RunError {
	return &RunError{Err: sentinel, Msg: fmt.Sprintf(format, args...)}
}

func (e *RunError) Error() string {
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Msg
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// NodeExecutionError is raised when a node fails and declares no on_error policy.
type NodeExecutionError struct {
	NodeID    string
	Kind      NodeKind
	Prompt    string
	Tool      string
	Detail    any
	Exception error
}

func (e *NodeExecutionError) Error() string {
	parts := []string{"type=" + string(e.Kind)}
	if e.Prompt != "" {
		parts = append(parts, "prompt="+e.Prompt)
	}
	if e.Tool != "" {
		parts = append(parts, "tool="+e.Tool)
	}
	if e.Detail != nil {
		parts = append(parts, fmt.Sprintf("error=%v", e.Detail))
	}
	if e.Exception != nil {
		parts = append(parts, "exception="+e.Exception.Error())
	}
	return fmt.Sprintf("node '%s' failed without on_error handler: %s", e.NodeID, strings.Join(parts, ", "))
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Exception
}

// IsFatal reports whether err must abort the run instead of entering the node's error policy.
func IsFatal(err error) bool {
	var cfgErr *ConfigError
	var runErr *RunError
	var nodeErr *NodeExecutionError
	return errors.As(err, &cfgErr) || errors.As(err, &runErr) || errors.As(err, &nodeErr)
}
