// Package config loads and validates arbor agent documents.
//
// An agent document is a YAML file with the sections meta, state, prompts,
// memory, tools, graph and subgraphs. Load reads it, Decode maps the raw tree
// onto the typed structs below and Validate reports every structural problem
// at once.
package config

import (
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/render"
)

// Document is the root of an agent document.
type Document struct {
	Meta      Meta             `mapstructure:"meta" json:"meta"`
	State     State            `mapstructure:"state" json:"state"`
	Prompts   Prompts          `mapstructure:"prompts" json:"prompts"`
	Memory    *Memory          `mapstructure:"memory" json:"memory,omitempty"`
	Tools     []Tool           `mapstructure:"tools" json:"tools"`
	Graph     Graph            `mapstructure:"graph" json:"graph"`
	Subgraphs map[string]Graph `mapstructure:"subgraphs" json:"subgraphs,omitempty"`
}

// Meta carries the agent name, run defaults and LLM provider settings.
type Meta struct {
	SchemaVersion int                       `mapstructure:"schema_version" json:"schema_version"`
	Name          string                    `mapstructure:"name" json:"name"`
	Defaults      Defaults                  `mapstructure:"defaults" json:"defaults"`
	Providers     map[string]map[string]any `mapstructure:"providers" json:"providers,omitempty"`
}

// Defaults apply to every node unless overridden.
type Defaults struct {
	// LLM selects the default provider as "provider:model".
	LLM     string   `mapstructure:"llm" json:"llm,omitempty"`
	Temp    *float64 `mapstructure:"temp" json:"temp,omitempty"`
	Retry   *Retry   `mapstructure:"retry" json:"retry,omitempty"`
	Timeout *Timeout `mapstructure:"timeout" json:"timeout,omitempty"`
}

// DefaultTemperature is used when defaults.temp is not set.
const DefaultTemperature = 0.3

// Temperature returns defaults.temp or DefaultTemperature.
func (d Defaults) Temperature() float64 {
	if d.Temp == nil {
		return DefaultTemperature
	}
	return *d.Temp
}

// State declares the run state.
type State struct {
	Shape   map[string]any `mapstructure:"shape" json:"shape"`
	Reducer string         `mapstructure:"reducer" json:"reducer"`
	Init    map[string]any `mapstructure:"init" json:"init,omitempty"`
}

// Prompts holds the named templates and the partials they can include.
type Prompts struct {
	Partials  map[string]string          `mapstructure:"partials" json:"partials,omitempty"`
	Templates map[string]render.Template `mapstructure:"templates" json:"templates"`
}

// Memory configures conversation history.
type Memory struct {
	Enabled    bool           `mapstructure:"enabled" json:"enabled"`
	Type       string         `mapstructure:"type" json:"type,omitempty"`
	Kind       string         `mapstructure:"kind" json:"kind"`
	DSN        string         `mapstructure:"dsn" json:"dsn,omitempty"`
	Table      string         `mapstructure:"table" json:"table,omitempty"`
	Path       string         `mapstructure:"path" json:"path,omitempty"`
	Namespace  string         `mapstructure:"namespace" json:"namespace,omitempty"`
	K          int            `mapstructure:"k" json:"k,omitempty"`
	SessionKey string         `mapstructure:"session_key" json:"session_key"`
	Config     map[string]any `mapstructure:"config" json:"config,omitempty"`
}

// Tool declares a tool implementation and its defaults.
type Tool struct {
	ID      string         `mapstructure:"id" json:"id"`
	Kind    string         `mapstructure:"kind" json:"kind"`
	Impl    string         `mapstructure:"impl" json:"impl"`
	Mode    string         `mapstructure:"mode" json:"mode"`
	Config  map[string]any `mapstructure:"config" json:"config,omitempty"`
	Retry   *Retry         `mapstructure:"retry" json:"retry,omitempty"`
	Timeout *Timeout       `mapstructure:"timeout" json:"timeout,omitempty"`
}

// Graph declares nodes and edges.
type Graph struct {
	Inputs   []string `mapstructure:"inputs" json:"inputs"`
	Outputs  []string `mapstructure:"outputs" json:"outputs"`
	Nodes    []Node   `mapstructure:"nodes" json:"nodes"`
	Edges    []Edge   `mapstructure:"edges" json:"edges,omitempty"`
	MaxSteps int      `mapstructure:"max_steps" json:"max_steps"`
	Timeout  *Timeout `mapstructure:"timeout" json:"timeout,omitempty"`
}

// Node is the flat union of every node kind.
type Node struct {
	ID          string   `mapstructure:"id" json:"id"`
	Type        string   `mapstructure:"type" json:"type"`
	Name        string   `mapstructure:"name" json:"name,omitempty"`
	Description string   `mapstructure:"description" json:"description,omitempty"`
	Retry       *Retry   `mapstructure:"retry" json:"retry,omitempty"`
	Timeout     *Timeout `mapstructure:"timeout" json:"timeout,omitempty"`
	OnError     *OnError `mapstructure:"on_error" json:"on_error,omitempty"`

	Uses   string         `mapstructure:"uses" json:"uses,omitempty"`
	Inputs map[string]any `mapstructure:"inputs" json:"inputs,omitempty"`
	Map    *MapOperation  `mapstructure:"map" json:"map,omitempty"`
	Prompt string         `mapstructure:"prompt" json:"prompt,omitempty"`

	Cases   []RouterCase `mapstructure:"cases" json:"cases,omitempty"`
	Default string       `mapstructure:"default" json:"default,omitempty"`

	Body          string `mapstructure:"body" json:"body,omitempty"`
	Until         any    `mapstructure:"until" json:"until,omitempty"`
	MaxIterations int    `mapstructure:"max_iterations" json:"max_iterations,omitempty"`

	Graph string `mapstructure:"graph" json:"graph,omitempty"`
}

// RouterCase activates To when When holds.
type RouterCase struct {
	When any    `mapstructure:"when" json:"when"`
	To   string `mapstructure:"to" json:"to"`
}

// Edge connects two nodes, optionally guarded.
type Edge struct {
	From string `mapstructure:"from" json:"from"`
	To   string `mapstructure:"to" json:"to"`
	When any    `mapstructure:"when" json:"when,omitempty"`
}

// OnError names a fallback node and/or resumes along the node's edges.
type OnError struct {
	To     string `mapstructure:"to" json:"to,omitempty"`
	Resume bool   `mapstructure:"resume" json:"resume,omitempty"`
}

// MapOperation is a set/merge/delete state mutation.
type MapOperation struct {
	Set    map[string]any `mapstructure:"set" json:"set,omitempty"`
	Merge  map[string]any `mapstructure:"merge" json:"merge,omitempty"`
	Delete []string       `mapstructure:"delete" json:"delete,omitempty"`
}

// Retry is a retry block. Backoff defaults to one second when omitted.
type Retry struct {
	MaxAttempts int      `mapstructure:"max_attempts" json:"max_attempts"`
	Backoff     *float64 `mapstructure:"backoff" json:"backoff,omitempty"`
}

// Timeout is a timeout block in seconds.
type Timeout struct {
	Seconds float64 `mapstructure:"seconds" json:"seconds"`
}

// Policy converts a retry block to its domain form, applying defaults.
func (r *Retry) Policy() *domain.RetryPolicy {
	if r == nil {
		return nil
	}
	p := &domain.RetryPolicy{MaxAttempts: r.MaxAttempts, Backoff: domain.DefaultConfigRetryBackoff}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = domain.DefaultRetryMaxAttempts
	}
	if r.Backoff != nil {
		p.Backoff = *r.Backoff
	}
	return p
}

// Domain converts a timeout block to its domain form.
func (t *Timeout) Domain() *domain.Timeout {
	if t == nil {
		return nil
	}
	return &domain.Timeout{Seconds: t.Seconds}
}

// Domain converts a map directive to its domain form.
func (m *MapOperation) Domain() *domain.MapOperation {
	if m == nil {
		return nil
	}
	return &domain.MapOperation{Set: m.Set, Merge: m.Merge, Delete: m.Delete}
}

// Domain converts an on_error block to its domain form.
func (o *OnError) Domain() *domain.OnError {
	if o == nil {
		return nil
	}
	return &domain.OnError{To: o.To, Resume: o.Resume}
}
