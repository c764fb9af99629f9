// Package runtime executes compiled graphs: it walks nodes and edges over a
// shared state map, dispatching each node to its executor and routing failures
// through the node's on_error policy.
package runtime

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/llm"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/render"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/aretw0/arbor/pkg/state"
	"github.com/google/uuid"
)

// StateConfig declares how the state of a new run is built.
type StateConfig struct {
	Init    map[string]any
	Shape   map[string]any
	Reducer string
}

// Defaults are the document-level retry and timeout policies.
type Defaults struct {
	Retry   *domain.RetryPolicy
	Timeout *domain.Timeout
}

// Config holds everything an Engine needs from a loaded agent.
type Config struct {
	Root      *domain.Graph
	Subgraphs map[string]*domain.Graph
	Tools     map[string]*registry.Handle
	Renderer  *render.Renderer
	State     StateConfig
	Defaults  Defaults
}

// Engine runs a compiled agent. It is safe for concurrent Run calls.
type Engine struct {
	root      *domain.Graph
	subgraphs map[string]*domain.Graph
	tools     map[string]*registry.Handle
	renderer  *render.Renderer
	state     StateConfig
	defaults  Defaults

	client   llm.Client
	memory   domain.Memory
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	maxDepth int
	schema   schema.Schema
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithDefaultLLM sets the client used when a run supplies none.
func WithDefaultLLM(c llm.Client) Option {
	return func(e *Engine) {
		e.client = c
	}
}

// WithMemory enables conversation memory.
func WithMemory(m domain.Memory) Option {
	return func(e *Engine) {
		e.memory = m
	}
}

// WithMaxSubgraphDepth overrides DefaultMaxSubgraphDepth for every run.
func WithMaxSubgraphDepth(n int) Option {
	return func(e *Engine) {
		e.maxDepth = n
	}
}

// WithStateSchema validates the final state of every run against s.
func WithStateSchema(s schema.Schema) Option {
	return func(e *Engine) {
		e.schema = s
	}
}

// NewEngine creates an engine for a compiled agent.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		root:      cfg.Root,
		subgraphs: cfg.Subgraphs,
		tools:     cfg.Tools,
		renderer:  cfg.Renderer,
		state:     cfg.State,
		defaults:  cfg.Defaults,
		maxDepth:  domain.DefaultMaxSubgraphDepth,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if e.renderer == nil {
		e.renderer = render.New(nil, nil)
	}
	if e.subgraphs == nil {
		e.subgraphs = map[string]*domain.Graph{}
	}
	if e.tools == nil {
		e.tools = map[string]*registry.Handle{}
	}
	return e
}

// RunOptions tune a single run.
type RunOptions struct {
	// LLMClient and LLMFunc are mutually exclusive.
	LLMClient     llm.Client
	LLMFunc       llm.CallFunc
	ToolOverrides map[string]registry.ToolFunction
	// MaxSteps overrides the root graph's max_steps when positive.
	MaxSteps int
	// MaxSubgraphDepth overrides the engine depth when non-nil.
	MaxSubgraphDepth *int
}

// Run executes the root graph for inputs and returns the final state.
func (e *Engine) Run(ctx context.Context, inputs map[string]any, opts RunOptions) (map[string]any, error) {
	client, err := e.resolveClient(opts)
	if err != nil {
		return nil, err
	}
	if inputs == nil {
		inputs = map[string]any{}
	}

	st, err := state.Initial(e.state.Init, e.state.Shape, e.root.Inputs, e.state.Reducer, inputs)
	if err != nil {
		return nil, err
	}

	runID, ok := domain.RunIDFromContext(ctx)
	if !ok {
		runID = uuid.NewString()
	}
	rc := &runContext{
		id:        runID,
		client:    client,
		overrides: opts.ToolOverrides,
		maxSteps:  e.root.MaxSteps,
		maxDepth:  e.maxDepth,
	}
	if opts.MaxSteps > 0 {
		rc.maxSteps = opts.MaxSteps
	}
	if rc.maxSteps <= 0 {
		rc.maxSteps = domain.DefaultMaxSteps
	}
	if opts.MaxSubgraphDepth != nil {
		rc.maxDepth = *opts.MaxSubgraphDepth
	}
	rc.logger = e.logger.With("run_id", rc.id, "graph", e.root.Name)

	start := time.Now()
	e.emitRunStart(ctx, rc, inputs)
	err = e.run(ctx, rc, st, inputs)
	e.emitRunEnd(ctx, rc, st, err, time.Since(start))
	if err != nil {
		rc.logger.Error("run failed", "steps", rc.steps, "error", err)
		return nil, err
	}
	rc.logger.Info("run completed", "steps", rc.steps, "duration", time.Since(start))
	return st, nil
}

func (e *Engine) run(ctx context.Context, rc *runContext, st, inputs map[string]any) error {
	var session domain.MemorySession
	if e.memory != nil {
		var err error
		if session, err = e.memory.Start(ctx, st, inputs); err != nil {
			return err
		}
	}

	err := e.runGraph(ctx, rc, &frame{graph: e.root, state: st, inputs: state.CopyMap(inputs)})
	if session != nil {
		if ferr := session.Finish(ctx, st, err); ferr != nil && err == nil {
			err = ferr
		}
	}
	if err != nil {
		return err
	}
	return e.validateState(st)
}

func (e *Engine) resolveClient(opts RunOptions) (llm.Client, error) {
	switch {
	case opts.LLMClient != nil && opts.LLMFunc != nil:
		return nil, domain.NewConfigError("specify either an llm client or an llm function, not both")
	case opts.LLMClient != nil:
		return opts.LLMClient, nil
	case opts.LLMFunc != nil:
		return llm.NewClient(opts.LLMFunc, llm.WithLogger(e.logger)), nil
	}
	return e.client, nil
}

// runGraph drains a FIFO queue seeded with the graph's entry nodes.
// Recovery targets of a failed node jump to the front of the queue.
func (e *Engine) runGraph(ctx context.Context, rc *runContext, f *frame) error {
	g := f.graph
	if f.depth > rc.maxDepth {
		return domain.NewRunError(domain.ErrSubgraphDepthExceeded,
			"max subgraph depth %d exceeded while entering graph '%s'", rc.maxDepth, g.Name)
	}
	if len(g.EntryNodes) == 0 {
		return domain.NewConfigError("graph '%s' has no entry nodes to execute", g.Name)
	}

	if g.Timeout != nil && g.Timeout.Seconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, llm.Seconds(g.Timeout.Seconds))
		defer cancel()
	}

	queue := append([]string(nil), g.EntryNodes...)
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		id := queue[0]
		queue = queue[1:]
		node, ok := g.Node(id)
		if !ok {
			return domain.NewConfigError("graph '%s' references unknown node '%s'", g.Name, id)
		}

		rc.steps++
		if rc.steps > rc.maxSteps {
			return domain.NewRunError(domain.ErrStepsExceeded, "max_steps exceeded (%d)", rc.maxSteps)
		}

		var before map[string]any
		if e.hooks.OnNodeLeave != nil {
			before = state.CopyMap(f.state)
		}
		start := time.Now()
		e.emitNodeEnter(ctx, rc, f, node)

		success, payload, next, err := e.execute(ctx, rc, f, node, true)
		if err != nil {
			if domain.IsFatal(err) {
				e.emitNodeLeave(ctx, rc, f, node, false, nil, before, time.Since(start))
				return err
			}
			success, payload, next = false, map[string]any{domain.KeyException: err}, nil
		}

		if success {
			e.emitNodeLeave(ctx, rc, f, node, true, next, before, time.Since(start))
			queue = append(queue, next...)
			continue
		}

		rc.logger.Warn("node failed", "node_id", node.ID, "node_type", node.Kind, "depth", f.depth)
		recovery, err := e.handleError(f, node, payload)
		e.emitNodeLeave(ctx, rc, f, node, false, recovery, before, time.Since(start))
		if err != nil {
			return err
		}
		queue = append(append([]string(nil), recovery...), queue...)
	}
	return nil
}
