package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// JSONLSink appends every lifecycle event of a run, masked, to
// <dir>/<run_id>.jsonl. Each line is one JSON object.
type JSONLSink struct {
	dir    string
	masker *Masker
	logger *slog.Logger

	mu sync.Mutex
}

// NewJSONLSink creates dir if needed. A nil masker uses DefaultMasker.
func NewJSONLSink(dir string, masker *Masker, logger *slog.Logger) (*JSONLSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("event log directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}
	if masker == nil {
		masker = DefaultMasker()
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &JSONLSink{dir: dir, masker: masker, logger: logger}, nil
}

// Path returns the file holding the events of runID.
func (s *JSONLSink) Path(runID string) string {
	return filepath.Join(s.dir, filepath.Base(runID)+".jsonl")
}

// Hooks returns the lifecycle hooks writing to the sink.
func (s *JSONLSink) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart: func(_ context.Context, e *domain.RunEvent) { s.write(e.RunID, e, nil) },
		OnRunEnd:   func(_ context.Context, e *domain.RunEvent) { s.write(e.RunID, e, e.Err) },
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			s.write(e.RunID, e, nil)
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			s.write(e.RunID, e, nil)
		},
		OnToolCall:   s.call,
		OnToolReturn: s.call,
		OnLLMCall:    s.call,
		OnLLMReturn:  s.call,
	}
}

func (s *JSONLSink) call(_ context.Context, e *domain.ToolEvent) {
	s.write(e.RunID, e, nil)
}

func (s *JSONLSink) write(runID string, event any, runErr error) {
	if runID == "" {
		return
	}
	record, err := s.record(event, runErr)
	if err != nil {
		s.logger.Warn("event log encode failed", "run_id", runID, "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.Path(runID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.logger.Warn("event log open failed", "run_id", runID, "err", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(record, '\n')); err != nil {
		s.logger.Warn("event log write failed", "run_id", runID, "err", err)
	}
}

// record round-trips the event through JSON so the masker sees plain maps.
func (s *JSONLSink) record(event any, runErr error) ([]byte, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if runErr != nil {
		fields["error"] = runErr.Error()
	}
	return json.Marshal(s.masker.Mask(fields))
}
