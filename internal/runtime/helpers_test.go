package runtime_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/arbor/internal/compiler"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/render"
	"github.com/aretw0/arbor/pkg/tools"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// newEngine compiles an agent document without structural validation, so
// tests only spell out the sections they exercise.
func newEngine(t *testing.T, doc string, opts ...runtime.Option) *runtime.Engine {
	t.Helper()

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(doc), &raw))
	d, err := config.Decode(raw)
	require.NoError(t, err)

	root, subs, err := compiler.CompileAll(d.Graph, d.Subgraphs)
	require.NoError(t, err)

	reg := registry.NewRegistry()
	tools.Register(reg)
	handles, err := reg.Build(d.Tools)
	require.NoError(t, err)

	return runtime.NewEngine(runtime.Config{
		Root:      root,
		Subgraphs: subs,
		Tools:     handles,
		Renderer:  render.New(d.Prompts.Templates, d.Prompts.Partials),
		State: runtime.StateConfig{
			Init:    d.State.Init,
			Shape:   d.State.Shape,
			Reducer: d.State.Reducer,
		},
		Defaults: runtime.Defaults{
			Retry:   d.Meta.Defaults.Retry.Policy(),
			Timeout: d.Meta.Defaults.Timeout.Domain(),
		},
	}, opts...)
}

// flaky fails the first n calls and counts every call.
func flaky(n int, calls *int) registry.ToolFunction {
	return func(_ context.Context, args map[string]any) (any, error) {
		*calls++
		if *calls <= n {
			return nil, errFlaky
		}
		return map[string]any{"ok": true, "attempt": *calls}, nil
	}
}

func sprintfDoc(doc string, args ...any) string {
	return fmt.Sprintf(doc, args...)
}
