// Package schema validates run state against the type declarations of an
// agent's state shape.
//
// A shape maps state keys to type strings:
//
//	shape, err := schema.ParseShape(map[string]any{
//	    "query":    "str",
//	    "count":    "int",
//	    "history":  "dict",
//	    "messages": "list[dict]",
//	    "answer":   "str | null",
//	})
//
//	if err := schema.Validate(shape, state); err != nil {
//	    for _, e := range schema.ValidationErrors(err) {
//	        // Handle each field failure
//	    }
//	}
//
// Supported types are str, int, float, bool, list, dict and any. A list may name
// its element type (list[str] or [str]) and any type becomes optional with a
// "| null" suffix. The package depends only on the standard library.
package schema
