package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	EngineOptions
	// Inputs is a JSON object, or @path to a JSON or YAML file.
	Inputs string
	// Set holds key=value pairs applied on top of Inputs.
	Set        []string
	Pretty     bool
	TraceGraph string
	MaxSteps   int
}

// RunResult is what `arbor run --json` prints.
type RunResult struct {
	RunID   string         `json:"run_id"`
	Outputs map[string]any `json:"outputs"`
	State   map[string]any `json:"state"`
}

// Execute runs the agent once and writes the result to stdout.
func Execute(ctx context.Context, opts RunOptions, logger *slog.Logger, stdout, stderr io.Writer) error {
	inputs, err := ParseInputs(opts.Inputs, opts.Set)
	if err != nil {
		return err
	}

	rec := &overlayRecorder{}
	engine, err := NewEngine(opts.EngineOptions, logger, arbor.WithLifecycleHooks(rec.Hooks()))
	if err != nil {
		return err
	}
	defer engine.Close()

	if opts.Pretty {
		tui.PrintBanner(stdout, arbor.Version)
	}

	sigCtx := NewSignalContext(ctx)
	defer sigCtx.Cancel()

	runID := uuid.NewString()
	var runOpts []arbor.RunOption
	if opts.MaxSteps > 0 {
		runOpts = append(runOpts, arbor.WithMaxSteps(opts.MaxSteps))
	}
	st, runErr := engine.Run(domain.ContextWithRunID(sigCtx, runID), inputs, runOpts...)

	if opts.TraceGraph != "" {
		g := engine.Inspect()
		chart := graph.GenerateMermaid(g.Root, g.Subgraphs, rec.Overlay())
		if err := os.WriteFile(opts.TraceGraph, []byte(chart), 0o644); err != nil {
			return fmt.Errorf("failed to write trace graph: %w", err)
		}
	}

	if runErr != nil {
		return handleExecutionError(runErr, sigCtx.Signal(), stderr)
	}
	return writeResult(stdout, engine, runID, st, opts.Pretty)
}

func writeResult(w io.Writer, engine *arbor.Engine, runID string, st map[string]any, pretty bool) error {
	outputs := engine.Info().Outputs
	if pretty {
		render, err := tui.NewRenderer(100)
		if err != nil {
			return err
		}
		out, err := render(tui.ResultMarkdown(engine.Name, outputs, st))
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	}

	res := RunResult{RunID: runID, Outputs: make(map[string]any, len(outputs)), State: st}
	for _, key := range outputs {
		res.Outputs[key] = st[key]
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// ParseInputs builds the run inputs from a JSON object (or @file) and
// key=value overrides. Override values are read as YAML scalars, so
// n=3 is a number and tags=[a,b] a list.
func ParseInputs(raw string, set []string) (map[string]any, error) {
	inputs := map[string]any{}

	if raw != "" {
		data := []byte(raw)
		if strings.HasPrefix(raw, "@") {
			var err error
			data, err = os.ReadFile(raw[1:])
			if err != nil {
				return nil, fmt.Errorf("failed to read inputs: %w", err)
			}
		}
		// YAML is a superset of JSON.
		if err := yaml.Unmarshal(data, &inputs); err != nil {
			return nil, fmt.Errorf("error parsing --inputs: %w", err)
		}
		if inputs == nil {
			inputs = map[string]any{}
		}
	}

	for _, pair := range set {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", pair)
		}
		inputs[key] = scalar(value)
	}
	return inputs, nil
}

func scalar(s string) any {
	if s == "" {
		return ""
	}
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	if _, isMap := v.(map[string]any); isMap {
		return s
	}
	return v
}
