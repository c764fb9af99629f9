// Package registry binds the tools declared by an agent document to Go implementations.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
)

// ToolFunction defines the signature for a tool implementation.
// It receives a context and a map of arguments, and returns a result or error.
// The result is normalized into the output envelope by the engine.
type ToolFunction func(ctx context.Context, args map[string]any) (any, error)

// Factory builds the implementation of a declared tool for one tool kind.
type Factory func(tool config.Tool) (ToolFunction, error)

// Handle is a declared tool resolved to its implementation.
type Handle struct {
	ID      string
	Kind    string
	Impl    string
	Func    ToolFunction
	Config  map[string]any
	Retry   *domain.RetryPolicy
	Timeout *domain.Timeout
}

// Registry manages the available implementations and kind factories.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]ToolFunction
	factories map[string]Factory
}

// NewRegistry creates a registry where builtin and python tools resolve
// against registered implementations.
func NewRegistry() *Registry {
	r := &Registry{
		tools:     make(map[string]ToolFunction),
		factories: make(map[string]Factory),
	}
	r.factories["builtin"] = r.implFactory
	r.factories["python"] = r.implFactory
	return r
}

// Register adds an implementation under name.
// If an implementation with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn ToolFunction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = fn
}

// RegisterKind installs the factory used for tools of the given kind.
func (r *Registry) RegisterKind(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Lookup returns the implementation registered under name.
func (r *Registry) Lookup(name string) (ToolFunction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tools[name]
	return fn, ok
}

// Names lists the registered implementations, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute looks up an implementation by name and executes it.
// Returns an error if the implementation is not found.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return fn(ctx, args)
}

// Build resolves every declared tool into a Handle keyed by tool id.
func (r *Registry) Build(tools []config.Tool) (map[string]*Handle, error) {
	handles := make(map[string]*Handle, len(tools))
	for _, t := range tools {
		r.mu.RLock()
		factory, ok := r.factories[t.Kind]
		r.mu.RUnlock()
		if !ok {
			return nil, domain.NewConfigError("tool '%s' has unsupported kind '%s'", t.ID, t.Kind)
		}

		fn, err := factory(t)
		if err != nil {
			return nil, domain.NewConfigError("tool '%s' failed to load: %w", t.ID, err)
		}

		handles[t.ID] = &Handle{
			ID:      t.ID,
			Kind:    t.Kind,
			Impl:    t.Impl,
			Func:    fn,
			Config:  t.Config,
			Retry:   t.Retry.Policy(),
			Timeout: t.Timeout.Domain(),
		}
	}
	return handles, nil
}

func (r *Registry) implFactory(t config.Tool) (ToolFunction, error) {
	name := ImplName(t.Impl)
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("implementation '%s' is not registered", name)
	}
	return fn, nil
}

// ImplName strips a module or file reference from impl, so "tools/mock.py#echo"
// and "tools.mock:echo" both name the implementation "echo".
func ImplName(impl string) string {
	if i := strings.LastIndexAny(impl, "#:"); i >= 0 {
		return impl[i+1:]
	}
	return impl
}
