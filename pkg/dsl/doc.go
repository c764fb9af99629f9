/*
Package dsl provides a fluent Go builder for arbor agent documents.

It produces the same *config.Document the YAML loader does, so an agent can be
defined in code for tests, generated flows or IDE-checked definitions, then
handed to arbor.New.

Example usage:

	b := dsl.New("counter").
		State("limit", "int").
		State("count", "int").
		Init("count", 0).
		Tool("bump", "builtin", "increment").
		Inputs("limit").
		Outputs("count")

	b.Add("tick").
		Uses("bump").
		Input("current", "{{ state.count }}").
		Set("count", "{{ result.json.count }}")

	b.Add("spin").
		Loop("tick", 5).
		Until(map[string]any{">=": []any{map[string]any{"var": "state.count"}, map[string]any{"var": "inputs.limit"}}})

	doc, err := b.Build()
	if err != nil {
		return err
	}
	engine, err := arbor.New(doc)
*/
package dsl
