/*
Package domain contains the core models of the arbor graph executor.

It defines the compiled graph (Graph, Node, Edge), the policies attached to nodes
(RetryPolicy, Timeout, OnError), the state mutation directive (MapOperation), the
normalized tool output envelope, the error taxonomy and the lifecycle hooks used for
observability. This package is kept free of I/O and third-party dependencies.

# Key Entities

  - Graph: a named, compiled set of nodes with edges, entry nodes and limits.
  - Node: a flat, kind-tagged unit of work (tool, llm, router, loop, subgraph, noop).
  - Edge: a possibly guarded transition between two nodes.
  - ToolOutput: the {status, json, text, items, result, error} envelope every executor inspects.
*/
package domain
