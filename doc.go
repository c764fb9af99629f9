/*
Package arbor executes declarative agent graphs: LLM calls, tool invocations
and control flow described in a single YAML document.

# Concept

An agent document declares a state shape, prompt templates, tools, a root
graph and named subgraphs. The engine compiles every graph once, then each
run walks the root graph over one shared state map. Routers pick branches,
loops repeat a body node until a condition holds, subgraph nodes run a nested
graph on a copy of the state and merge the result back. Failures follow the
node's on_error policy or abort the run.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/arbor"
	)

	func main() {
		eng, err := arbor.Load("./agent.yaml")
		if err != nil {
			log.Fatal(err)
		}
		defer eng.Close()

		state, err := eng.Run(context.Background(), map[string]any{"question": "What is a trie?"})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(state["answer"])
	}

Run options replace the LLM client, override tools or cap steps for a single
run. Engine options add logging, lifecycle hooks, tracing and metrics.
*/
package arbor
