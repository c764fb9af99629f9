package runtime_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky failure")

func TestEngine_ToolThenRouter(t *testing.T) {
	eng := newEngine(t, `
tools:
  - {id: echo, kind: builtin, impl: echo}
graph:
  nodes:
    - id: A
      type: tool
      uses: echo
      map: {set: {x: 1}}
    - id: B
      type: router
      cases:
        - when: {"==": [{"var": "state.x"}, 1]}
          to: C
      default: D
    - id: C
      type: noop
      map: {set: {c_ran: true}}
    - id: D
      type: noop
      map: {set: {d_ran: true}}
  edges:
    - {from: A, to: B}
`)

	st, err := eng.Run(context.Background(), map[string]any{}, runtime.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, st["x"])
	assert.Equal(t, true, st["c_ran"])
	assert.NotContains(t, st, "d_ran")
}

func TestEngine_Router(t *testing.T) {
	doc := func(def string) string {
		return `
state:
  init: {flag: 0, visited: []}
graph:
  nodes:
    - id: route
      type: router
      cases:
        - when: {">": [{"var": "inputs.n"}, 1]}
          to: big
        - when: {">": [{"var": "inputs.n"}, 5]}
          to: huge
      default: "` + def + `"
    - {id: big, type: noop, map: {merge: {visited: [big]}}}
    - {id: huge, type: noop, map: {merge: {visited: [huge]}}}
    - {id: small, type: noop, map: {merge: {visited: [small]}}}
    - {id: edge_only, type: noop, map: {merge: {visited: [edge_only]}}}
  edges:
    - from: route
      to: edge_only
      when: {"==": [{"var": "inputs.n"}, 0]}
`
	}

	t.Run("Union of matching cases in order", func(t *testing.T) {
		st, err := newEngine(t, doc("small")).Run(context.Background(), map[string]any{"n": 10}, runtime.RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, []any{"big", "huge"}, st["visited"])
	})

	t.Run("Default when nothing matches", func(t *testing.T) {
		st, err := newEngine(t, doc("small")).Run(context.Background(), map[string]any{"n": 0}, runtime.RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, []any{"small"}, st["visited"])
	})

	t.Run("Empty default falls back to guarded edges", func(t *testing.T) {
		st, err := newEngine(t, doc("")).Run(context.Background(), map[string]any{"n": 0}, runtime.RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, []any{"edge_only"}, st["visited"])
	})

	t.Run("Nothing activated", func(t *testing.T) {
		st, err := newEngine(t, doc("")).Run(context.Background(), map[string]any{"n": 1}, runtime.RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, []any{}, st["visited"])
	})
}

func TestEngine_Loop(t *testing.T) {
	doc := `
state:
  init:
    count: 0
    history: {values: []}
tools:
  - {id: inc, kind: builtin, impl: increment}
graph:
  nodes:
    - id: counter
      type: loop
      body: bump
      until: {">=": [{"var": "state.count"}, 3]}
      max_iterations: 5
    - id: bump
      type: tool
      uses: inc
      inputs:
        current: "{{ count }}"
      map:
        set: {count: "{{ result.json.count }}"}
        merge:
          history: {values: ["{{ result.json.count }}"]}
    - {id: done, type: noop, map: {set: {finished: "{{ state.count }}"}}}
  edges:
    - {from: counter, to: done}
`
	st, err := newEngine(t, doc).Run(context.Background(), nil, runtime.RunOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, st["count"])
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, st["history"].(map[string]any)["values"])
	assert.EqualValues(t, 3, st["finished"])

	t.Run("Exhausted without convergence", func(t *testing.T) {
		seeded := strings.Replace(doc, "count: 0", "count: -10", 1)
		_, err := newEngine(t, seeded).Run(context.Background(), nil, runtime.RunOptions{})
		assert.ErrorIs(t, err, domain.ErrLoopExhausted)
	})

	t.Run("No until condition", func(t *testing.T) {
		eng := newEngine(t, `
graph:
  nodes:
    - {id: spin, type: loop, body: tick, max_iterations: 2}
    - {id: tick, type: noop, map: {set: {ticked: true}}}
`)
		_, err := eng.Run(context.Background(), nil, runtime.RunOptions{})
		assert.ErrorIs(t, err, domain.ErrLoopExhausted)
	})
}

func TestEngine_MissingInput(t *testing.T) {
	eng := newEngine(t, `
graph:
  inputs: [query, lang]
  nodes:
    - {id: only, type: noop}
`)
	_, err := eng.Run(context.Background(), map[string]any{}, runtime.RunOptions{})
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "missing required inputs for graph '__root__': [lang query]", err.Error())
}

func TestEngine_InitialState(t *testing.T) {
	doc := `
state:
  shape: {answer: str, prefs: dict}
  reducer: %s
  init:
    prefs: {lang: en, tone: dry}
graph:
  inputs: [prefs]
  nodes:
    - {id: only, type: noop}
`
	t.Run("Deep merge", func(t *testing.T) {
		eng := newEngine(t, fmt.Sprintf(doc, "deepmerge"))
		st, err := eng.Run(context.Background(), map[string]any{"prefs": map[string]any{"tone": "warm"}}, runtime.RunOptions{})
		require.NoError(t, err)
		assert.Nil(t, st["answer"])
		assert.Contains(t, st, "answer")
		assert.Equal(t, map[string]any{"lang": "en", "tone": "warm"}, st["prefs"])
	})

	t.Run("Replace", func(t *testing.T) {
		eng := newEngine(t, fmt.Sprintf(doc, "replace"))
		st, err := eng.Run(context.Background(), map[string]any{"prefs": map[string]any{"tone": "warm"}}, runtime.RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"tone": "warm"}, st["prefs"])
	})

	t.Run("Undeclared inputs", func(t *testing.T) {
		eng := newEngine(t, fmt.Sprintf(doc, "deepmerge"))
		st, err := eng.Run(context.Background(), map[string]any{"prefs": map[string]any{}, "extra": "leak"}, runtime.RunOptions{})
		require.NoError(t, err)
		assert.NotContains(t, st, "extra")
	})
}

func TestEngine_MaxSteps(t *testing.T) {
	eng := newEngine(t, `
graph:
  max_steps: 2
  nodes:
    - {id: a, type: noop}
    - {id: b, type: noop}
    - {id: c, type: noop}
  edges:
    - {from: a, to: b}
    - {from: b, to: c}
`)
	_, err := eng.Run(context.Background(), nil, runtime.RunOptions{})
	assert.ErrorIs(t, err, domain.ErrStepsExceeded)

	_, err = eng.Run(context.Background(), nil, runtime.RunOptions{MaxSteps: 3})
	assert.NoError(t, err)
}

func TestEngine_ConcurrentRuns(t *testing.T) {
	eng := newEngine(t, `
graph:
  max_steps: 2
  nodes:
    - {id: a, type: noop, map: {set: {seen: "{{ inputs.id }}"}}}
    - {id: b, type: noop}
  edges:
    - {from: a, to: b}
`)
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			st, err := eng.Run(context.Background(), map[string]any{"id": i}, runtime.RunOptions{})
			if err == nil && fmt.Sprint(st["seen"]) != fmt.Sprint(i) {
				err = errors.New("state leaked between runs")
			}
			errs <- err
		}(i)
	}
	for i := 0; i < 8; i++ {
		assert.NoError(t, <-errs)
	}
}

func TestEngine_Cancelled(t *testing.T) {
	eng := newEngine(t, `
graph:
  nodes:
    - {id: a, type: noop}
`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.Run(ctx, nil, runtime.RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
