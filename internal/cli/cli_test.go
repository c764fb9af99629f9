package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const agentYAML = `
meta:
  name: shouter
state:
  shape:
    text: str
    reply: str | null
tools:
  - {id: echo, kind: builtin, impl: echo}
  - {id: broken, kind: builtin, impl: failing}
graph:
  inputs: [text]
  outputs: [reply]
  nodes:
    - id: say
      type: tool
      uses: echo
      inputs:
        text: "{{ inputs.text }}"
      map:
        set:
          reply: "{{ result.text }}"
    - id: check
      type: router
      cases:
        - when: {"==": [{"var": "inputs.text"}, "fail"]}
          to: explode
    - id: explode
      type: tool
      uses: broken
  edges:
    - {from: say, to: check}
`

func writeAgent(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return filepath.Join(dir, "agent.yaml")
}

func TestParseInputs(t *testing.T) {
	t.Run("JSON object", func(t *testing.T) {
		in, err := ParseInputs(`{"text": "hi", "n": 2}`, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"text": "hi", "n": 2}, in)
	})

	t.Run("File reference", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "inputs.yaml")
		require.NoError(t, os.WriteFile(path, []byte("text: from file\n"), 0o644))
		in, err := ParseInputs("@"+path, nil)
		require.NoError(t, err)
		assert.Equal(t, "from file", in["text"])
	})

	t.Run("Set overrides are typed", func(t *testing.T) {
		in, err := ParseInputs(`{"text": "a"}`, []string{"text=b", "n=3", "ok=true", "tags=[x, y]", "empty=", "pair=a: b"})
		require.NoError(t, err)
		assert.Equal(t, "b", in["text"])
		assert.Equal(t, 3, in["n"])
		assert.Equal(t, true, in["ok"])
		assert.Equal(t, []any{"x", "y"}, in["tags"])
		assert.Equal(t, "", in["empty"])
		assert.Equal(t, "a: b", in["pair"])
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := ParseInputs(`[1, 2]`, nil)
		assert.ErrorContains(t, err, "error parsing --inputs")

		_, err = ParseInputs("", []string{"novalue"})
		assert.ErrorContains(t, err, "expected key=value")

		_, err = ParseInputs("@/does/not/exist.json", nil)
		assert.ErrorContains(t, err, "failed to read inputs")
	})
}

func TestExecute_JSON(t *testing.T) {
	path := writeAgent(t, map[string]string{"agent.yaml": agentYAML})
	var stdout, stderr bytes.Buffer

	err := Execute(context.Background(), RunOptions{
		EngineOptions: EngineOptions{Path: path},
		Set:           []string{"text=hello"},
	}, logging.NewNop(), &stdout, &stderr)
	require.NoError(t, err)

	var res RunResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, map[string]any{"reply": "hello"}, res.Outputs)
	assert.Equal(t, "hello", res.State["text"])
}

func TestExecute_TraceGraph(t *testing.T) {
	path := writeAgent(t, map[string]string{"agent.yaml": agentYAML})
	chart := filepath.Join(filepath.Dir(path), "trace.mmd")
	var stdout, stderr bytes.Buffer

	err := Execute(context.Background(), RunOptions{
		EngineOptions: EngineOptions{Path: path},
		Set:           []string{"text=fail"},
		TraceGraph:    chart,
	}, logging.NewNop(), &stdout, &stderr)

	var nodeErr *domain.NodeExecutionError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "explode", nodeErr.NodeID)

	data, err := os.ReadFile(chart)
	require.NoError(t, err)
	assert.Contains(t, string(data), "class say visited;")
	assert.Contains(t, string(data), "class check visited;")
	assert.Contains(t, string(data), "class explode failed;")
}

func TestExecute_Trace(t *testing.T) {
	path := writeAgent(t, map[string]string{"agent.yaml": agentYAML})
	var stdout, stderr, trace bytes.Buffer

	err := Execute(context.Background(), RunOptions{
		EngineOptions: EngineOptions{Path: path, Trace: &trace},
		Set:           []string{"text=hi"},
	}, logging.NewNop(), &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, trace.String(), ">>> [__root__] enter say (tool)")
	assert.Contains(t, trace.String(), ">>> [__root__] leave say -> [check]")
}

func TestExecute_EventsDir(t *testing.T) {
	path := writeAgent(t, map[string]string{"agent.yaml": agentYAML})
	dir := filepath.Join(filepath.Dir(path), "events")
	var stdout, stderr bytes.Buffer

	err := Execute(context.Background(), RunOptions{
		EngineOptions: EngineOptions{Path: path, EventsDir: dir},
		Set:           []string{"text=hi"},
	}, logging.NewNop(), &stdout, &stderr)
	require.NoError(t, err)

	var res RunResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	data, err := os.ReadFile(filepath.Join(dir, res.RunID+".jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"run_start"`)
	assert.Contains(t, string(data), `"node_id":"say"`)
	assert.Contains(t, string(data), `"type":"run_end"`)
}

func TestExecute_Interrupted(t *testing.T) {
	path := writeAgent(t, map[string]string{"agent.yaml": agentYAML})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var stdout, stderr bytes.Buffer

	err := Execute(ctx, RunOptions{
		EngineOptions: EngineOptions{Path: path},
		Set:           []string{"text=hi"},
	}, logging.NewNop(), &stdout, &stderr)
	assert.NoError(t, err)
	assert.Contains(t, stderr.String(), "Interrupted")
	assert.Empty(t, stdout.String())
}

func TestNewEngine_ProcessToolsFile(t *testing.T) {
	agent := `
meta:
  name: greeter
state:
  shape: {who: str, greeting: str | null}
tools:
  - {id: greet, kind: process, impl: greet}
graph:
  inputs: [who]
  outputs: [greeting]
  nodes:
    - id: hello
      type: tool
      uses: greet
      inputs: {who: "{{ inputs.who }}"}
      map:
        set: {greeting: "{{ result.text }}"}
`
	toolsFile := `
tools:
  - name: greet
    command: sh
    args: ["-c", "echo hello $ARBOR_ARG_WHO"]
`
	path := writeAgent(t, map[string]string{"agent.yaml": agent, DefaultToolsFile: toolsFile})

	eng, err := NewEngine(EngineOptions{Path: path}, logging.NewNop())
	require.NoError(t, err)
	defer eng.Close()

	st, err := eng.Run(context.Background(), map[string]any{"who": "arbor"})
	require.NoError(t, err)
	assert.Equal(t, "hello arbor", st["greeting"])
}

func TestNewEngine_Invalid(t *testing.T) {
	path := writeAgent(t, map[string]string{"agent.yaml": "graph: {}\n"})
	_, err := NewEngine(EngineOptions{Path: path}, logging.NewNop())
	assert.ErrorContains(t, err, "error initializing agent")
}

func TestResolveToolsPath(t *testing.T) {
	dir := t.TempDir()
	agent := filepath.Join(dir, "agent.yaml")

	assert.Equal(t, "explicit.yaml", resolveToolsPath(agent, "explicit.yaml"))
	assert.Equal(t, "", resolveToolsPath(agent, ""))

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultToolsFile), []byte("tools: []\n"), 0o644))
	assert.Equal(t, filepath.Join(dir, DefaultToolsFile), resolveToolsPath(agent, ""))
}
