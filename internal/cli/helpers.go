package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// Unlike signal.NotifyContext it remembers which signal fired.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// NewLogger configures the application logger. Logs go to stderr so stdout
// stays clean for results; without debug only warnings and errors show.
func NewLogger(level slog.Level, debug bool) *slog.Logger {
	if debug {
		level = slog.LevelDebug
	}
	return logging.New(level)
}

// createDebugHooks prints a compact trace of the run on w.
func createDebugHooks(w io.Writer) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			fmt.Fprintf(w, ">>> [%s] enter %s (%s)\n", e.Graph, e.NodeID, e.NodeType)
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			if e.Success {
				fmt.Fprintf(w, ">>> [%s] leave %s -> %v\n", e.Graph, e.NodeID, e.Next)
			} else {
				fmt.Fprintf(w, ">>> [%s] failed %s\n", e.Graph, e.NodeID)
			}
		},
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			if e.IsError {
				fmt.Fprintf(w, ">>> tool %s attempt %d failed\n", e.ToolName, e.Attempt)
			}
		},
		OnLLMReturn: func(_ context.Context, e *domain.ToolEvent) {
			if e.IsError {
				fmt.Fprintf(w, ">>> llm %s attempt %d failed\n", e.ToolName, e.Attempt)
			}
		},
	}
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}

// handleExecutionError turns a user interruption into a clean exit.
func handleExecutionError(err error, sig os.Signal, stderr io.Writer) error {
	if err == nil {
		return nil
	}
	if isInterrupted(err) {
		switch sig {
		case os.Interrupt:
			fmt.Fprintln(stderr, "\n>>> [CTRL+C] Interrupted.")
		case nil:
			fmt.Fprintln(stderr, ">>> Interrupted.")
		default:
			fmt.Fprintln(stderr, "\n>>> Terminated.")
		}
		return nil
	}
	return err
}
