package domain

import "context"

// Memory primes a run's state from conversation history.
type Memory interface {
	Start(ctx context.Context, st, inputs map[string]any) (MemorySession, error)
}

// MemorySession is the conversation bound to one run.
type MemorySession interface {
	// Finish stores the new messages when runErr is nil and releases the session.
	Finish(ctx context.Context, st map[string]any, runErr error) error
}
