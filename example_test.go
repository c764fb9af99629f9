package arbor_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/config"
)

// ExampleNew builds an engine from an in-memory document.
func ExampleNew() {
	doc, err := config.Parse([]byte(`
meta:
  name: counter
state:
  shape:
    count: int
  init:
    count: 0
tools:
  - id: inc
    kind: builtin
    impl: increment
graph:
  inputs: [step]
  outputs: [count]
  nodes:
    - id: bump
      type: loop
      body: add
      until: {">=": [{"var": "state.count"}, 3]}
    - id: add
      type: tool
      uses: inc
      inputs:
        current: "{{ state.count }}"
      map:
        set:
          count: "{{ result.json.count }}"
`))
	if err != nil {
		log.Fatal(err)
	}

	eng, err := arbor.New(doc)
	if err != nil {
		log.Fatal(err)
	}

	state, err := eng.Run(context.Background(), map[string]any{"step": 1})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(state["count"])
	// Output: 3
}
