package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Key    string // Field name or dotted path
	Reason string // Human-readable reason for failure
	Value  any    // The value that failed validation
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("field %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("field %q: %s (got %T)", e.Key, e.Reason, e.Value)
}

// AggregateError represents multiple validation failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err.Error())
	}
	return b.String()
}

func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// Collector accumulates validation failures.
type Collector struct {
	errs []error
}

// Add records a failure for key.
func (c *Collector) Add(key, reason string, value any) {
	c.errs = append(c.errs, &ValidationError{Key: key, Reason: reason, Value: value})
}

// Addf records a failure for key with a formatted reason.
func (c *Collector) Addf(key string, format string, args ...any) {
	c.Add(key, fmt.Sprintf(format, args...), nil)
}

// Err returns nil when nothing was collected, otherwise an *AggregateError.
func (c *Collector) Err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return &AggregateError{Errors: c.errs}
}

// ValidationErrors returns all validation errors if err is an AggregateError.
// Otherwise returns nil.
func ValidationErrors(err error) []error {
	var aggr *AggregateError
	if errors.As(err, &aggr) {
		return aggr.Errors
	}
	return nil
}
