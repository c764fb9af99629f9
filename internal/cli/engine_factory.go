package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/tools"
)

// DefaultToolsFile is looked up next to the agent document when no process
// tools file is given.
const DefaultToolsFile = "tools.yaml"

// EngineOptions holds the flags shared by every command that loads an agent.
type EngineOptions struct {
	Path          string
	ToolsPath     string
	ValidateState bool
	// Trace, when set, receives a node by node trace of every run.
	Trace io.Writer
	// EventsDir, when set, receives one <run_id>.jsonl event log per run.
	EventsDir string
}

// NewEngine loads the agent at opts.Path with standard CLI conventions.
func NewEngine(opts EngineOptions, logger *slog.Logger, extra ...arbor.Option) (*arbor.Engine, error) {
	engineOpts := []arbor.Option{
		arbor.WithLogger(logger),
		arbor.WithStateValidation(opts.ValidateState),
	}

	if opts.Trace != nil {
		engineOpts = append(engineOpts, arbor.WithLifecycleHooks(createDebugHooks(opts.Trace)))
	}

	if opts.EventsDir != "" {
		engineOpts = append(engineOpts, arbor.WithEventLog(opts.EventsDir))
	}

	toolsPath := resolveToolsPath(opts.Path, opts.ToolsPath)
	if toolsPath != "" {
		procs, err := tools.LoadProcessTools(toolsPath)
		if err != nil {
			return nil, err
		}
		logger.Debug("process tools loaded", "path", toolsPath, "count", len(procs))
		engineOpts = append(engineOpts, arbor.WithToolOptions(tools.WithProcesses(procs)))
	}

	engine, err := arbor.Load(opts.Path, append(engineOpts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("error initializing agent: %w", err)
	}
	return engine, nil
}

// resolveToolsPath keeps an explicit path and otherwise falls back to a
// tools.yaml beside the agent document, if one exists.
func resolveToolsPath(agentPath, toolsPath string) string {
	if toolsPath != "" {
		return toolsPath
	}
	candidate := filepath.Join(filepath.Dir(agentPath), DefaultToolsFile)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}
