package arbor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/aretw0/arbor/internal/compiler"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/llm"
	"github.com/aretw0/arbor/pkg/llm/providers"
	"github.com/aretw0/arbor/pkg/memory"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/render"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/aretw0/arbor/pkg/tools"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the high-level entry point of the library. It owns a compiled
// agent and is safe for concurrent Run calls.
type Engine struct {
	Name string

	doc       *config.Document
	root      *domain.Graph
	subgraphs map[string]*domain.Graph
	runtime   *runtime.Engine
	memory    *memory.Manager
	logger    *slog.Logger
}

type options struct {
	logger         *slog.Logger
	hooks          []domain.LifecycleHooks
	registry       *registry.Registry
	toolOpts       []tools.Option
	client         llm.Client
	validateState  bool
	baseDir        string
	tracerProvider trace.TracerProvider
	metrics        *observability.Metrics
	masker         *observability.Masker
	maxDepth       int
	eventDir       string
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the structured logger. Lifecycle events are logged at
// debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLifecycleHooks adds observability hooks. It may be given several times.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, hooks)
	}
}

// WithRegistry replaces the default tool registry. Built-in tools are
// registered on it as well.
func WithRegistry(reg *registry.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithToolOptions configures the built-in tool kinds.
func WithToolOptions(opts ...tools.Option) Option {
	return func(o *options) {
		o.toolOpts = append(o.toolOpts, opts...)
	}
}

// WithDefaultLLM sets the client used when a run supplies none, instead of
// the one built from meta.defaults.llm.
func WithDefaultLLM(c llm.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithStateValidation checks the final state of every run against state.shape.
func WithStateValidation(enabled bool) Option {
	return func(o *options) {
		o.validateState = enabled
	}
}

// WithBaseDir resolves relative memory paths against dir.
func WithBaseDir(dir string) Option {
	return func(o *options) {
		o.baseDir = dir
	}
}

// WithTracerProvider opens spans for runs, nodes and calls.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithMetrics records runs, nodes and calls on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithMasker sets the masker used by the logging hooks.
func WithMasker(m *observability.Masker) Option {
	return func(o *options) {
		o.masker = m
	}
}

// WithEventLog writes the masked lifecycle events of each run to
// <dir>/<run_id>.jsonl.
func WithEventLog(dir string) Option {
	return func(o *options) {
		o.eventDir = dir
	}
}

// WithSubgraphDepth overrides the maximum subgraph nesting of every run.
func WithSubgraphDepth(n int) Option {
	return func(o *options) {
		o.maxDepth = n
	}
}

// Load reads an agent document and builds an engine for it. Relative memory
// paths resolve against the document's directory.
func Load(path string, opts ...Option) (*Engine, error) {
	doc, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	return New(doc, append([]Option{WithBaseDir(dir)}, opts...)...)
}

// New compiles a decoded document and builds an engine for it.
func New(doc *config.Document, opts ...Option) (*Engine, error) {
	if doc == nil {
		return nil, errors.New("agent document is required")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	name := doc.Meta.Name
	if name == "" {
		name = domain.RootGraphName
	}
	logger := o.logger.With("graph", name)

	root, subgraphs, err := compiler.CompileAll(doc.Graph, doc.Subgraphs)
	if err != nil {
		return nil, err
	}

	reg := o.registry
	if reg == nil {
		reg = registry.NewRegistry()
	}
	tools.Register(reg, o.toolOpts...)
	handles, err := reg.Build(doc.Tools)
	if err != nil {
		return nil, err
	}

	client := o.client
	if client == nil {
		client, err = providers.New(context.Background(), doc.Meta, logger)
		if err != nil {
			return nil, err
		}
	}

	hooks := []domain.LifecycleHooks{observability.LoggingHooks(logger, o.masker)}
	if o.tracerProvider != nil {
		hooks = append(hooks, observability.NewTracing(o.tracerProvider).Hooks())
	}
	if o.metrics != nil {
		hooks = append(hooks, o.metrics.Hooks())
	}
	if o.eventDir != "" {
		sink, err := observability.NewJSONLSink(o.eventDir, o.masker, logger)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, sink.Hooks())
	}
	hooks = append(hooks, o.hooks...)

	runtimeOpts := []runtime.Option{
		runtime.WithLogger(logger),
		runtime.WithLifecycleHooks(observability.Compose(hooks...)),
		runtime.WithDefaultLLM(client),
	}
	if o.maxDepth > 0 {
		runtimeOpts = append(runtimeOpts, runtime.WithMaxSubgraphDepth(o.maxDepth))
	}
	if o.validateState {
		s, err := schema.ParseShape(doc.State.Shape)
		if err != nil {
			return nil, domain.NewConfigError("invalid state.shape: %w", err)
		}
		runtimeOpts = append(runtimeOpts, runtime.WithStateSchema(s))
	}

	mem, err := memory.New(doc.Memory, o.baseDir, logger)
	if err != nil {
		return nil, err
	}
	if mem != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithMemory(mem))
	}

	rt := runtime.NewEngine(runtime.Config{
		Root:      root,
		Subgraphs: subgraphs,
		Tools:     handles,
		Renderer:  render.New(doc.Prompts.Templates, doc.Prompts.Partials),
		State: runtime.StateConfig{
			Init:    doc.State.Init,
			Shape:   doc.State.Shape,
			Reducer: doc.State.Reducer,
		},
		Defaults: runtime.Defaults{
			Retry:   doc.Meta.Defaults.Retry.Policy(),
			Timeout: doc.Meta.Defaults.Timeout.Domain(),
		},
	}, runtimeOpts...)

	return &Engine{
		Name:      name,
		doc:       doc,
		root:      root,
		subgraphs: subgraphs,
		runtime:   rt,
		memory:    mem,
		logger:    logger,
	}, nil
}

// RunOption tunes a single run.
type RunOption func(*runtime.RunOptions)

// WithLLMClient uses c for the llm nodes of this run.
func WithLLMClient(c llm.Client) RunOption {
	return func(o *runtime.RunOptions) {
		o.LLMClient = c
	}
}

// WithLLMFunc wraps fn in a retrying client for this run. It cannot be
// combined with WithLLMClient.
func WithLLMFunc(fn llm.CallFunc) RunOption {
	return func(o *runtime.RunOptions) {
		o.LLMFunc = fn
	}
}

// WithToolOverride replaces the implementation of tool id for this run.
func WithToolOverride(id string, fn registry.ToolFunction) RunOption {
	return func(o *runtime.RunOptions) {
		if o.ToolOverrides == nil {
			o.ToolOverrides = map[string]registry.ToolFunction{}
		}
		o.ToolOverrides[id] = fn
	}
}

// WithMaxSteps caps the node executions of this run, subgraphs included.
func WithMaxSteps(n int) RunOption {
	return func(o *runtime.RunOptions) {
		o.MaxSteps = n
	}
}

// WithMaxSubgraphDepth caps subgraph nesting for this run.
func WithMaxSubgraphDepth(n int) RunOption {
	return func(o *runtime.RunOptions) {
		o.MaxSubgraphDepth = &n
	}
}

// Run executes the root graph for inputs and returns the final state.
func (e *Engine) Run(ctx context.Context, inputs map[string]any, opts ...RunOption) (map[string]any, error) {
	var ro runtime.RunOptions
	for _, opt := range opts {
		opt(&ro)
	}
	return e.runtime.Run(ctx, inputs, ro)
}

// Graphs is the compiled structure of an agent.
type Graphs struct {
	Root      *domain.Graph            `json:"graph"`
	Subgraphs map[string]*domain.Graph `json:"subgraphs,omitempty"`
}

// Inspect returns the compiled graphs for visualization or introspection.
func (e *Engine) Inspect() Graphs {
	return Graphs{Root: e.root, Subgraphs: e.subgraphs}
}

// Document returns the agent document the engine was built from.
func (e *Engine) Document() *config.Document {
	return e.doc
}

// Info summarizes the agent for status endpoints.
type Info struct {
	Name      string   `json:"name"`
	Inputs    []string `json:"inputs"`
	Outputs   []string `json:"outputs"`
	Tools     []string `json:"tools"`
	Subgraphs []string `json:"subgraphs,omitempty"`
	Memory    string   `json:"memory"`
}

// Info describes the agent's contract and configuration.
func (e *Engine) Info() Info {
	info := Info{
		Name:    e.Name,
		Inputs:  e.root.Inputs,
		Outputs: e.root.Outputs,
		Memory:  memory.Describe(e.doc.Memory),
	}
	for _, t := range e.doc.Tools {
		info.Tools = append(info.Tools, t.ID)
	}
	for name := range e.subgraphs {
		info.Subgraphs = append(info.Subgraphs, name)
	}
	sort.Strings(info.Subgraphs)
	return info
}

// Close releases the memory store.
func (e *Engine) Close() error {
	if e.memory == nil {
		return nil
	}
	return e.memory.Close()
}
