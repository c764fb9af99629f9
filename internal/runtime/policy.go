package runtime

import (
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/registry"
)

// ResolveRetry picks the first retry policy declared on the node, the tool
// handle or the document defaults. LLM nodes pass a nil handle. With nothing
// declared a single attempt without backoff is used.
func ResolveRetry(node *domain.Node, handle *registry.Handle, defaults Defaults) domain.RetryPolicy {
	switch {
	case node != nil && node.Retry != nil:
		return *node.Retry
	case handle != nil && handle.Retry != nil:
		return *handle.Retry
	case defaults.Retry != nil:
		return *defaults.Retry
	}
	return domain.RetryPolicy{MaxAttempts: domain.DefaultRetryMaxAttempts}
}

// ResolveTimeout picks the first timeout declared on the node, the tool handle
// or the document defaults. It returns nil when none is declared.
func ResolveTimeout(node *domain.Node, handle *registry.Handle, defaults Defaults) *domain.Timeout {
	switch {
	case node != nil && node.Timeout != nil:
		return node.Timeout
	case handle != nil && handle.Timeout != nil:
		return handle.Timeout
	}
	return defaults.Timeout
}
