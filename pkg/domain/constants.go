package domain

// RootGraphName names the top-level graph in compile errors and dependency checks.
const RootGraphName = "__root__"

// Defaults applied when the agent document leaves a limit unset.
const (
	DefaultMaxSteps           = 200
	DefaultMaxIterations      = 10
	DefaultMaxSubgraphDepth   = 8
	DefaultRetryMaxAttempts   = 1
	DefaultConfigRetryBackoff = 1.0
)

// Render context keys shared by the renderer and the condition evaluator.
const (
	KeyState  = "state"
	KeyInputs = "inputs"
	KeyResult = "result"
	KeyOutput = "output"
	KeyNode   = "node"
)

// Output envelope keys.
const (
	KeyStatus    = "status"
	KeyJSON      = "json"
	KeyText      = "text"
	KeyItems     = "items"
	KeyError     = "error"
	KeyException = "exception"
	KeyTargets   = "targets"
	KeyOutputs   = "outputs"
	KeyTimeout   = "timeout"
)
