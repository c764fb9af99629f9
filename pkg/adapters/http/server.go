// Package http exposes an arbor engine over HTTP: synchronous and streamed
// runs, graph introspection, health, info and Prometheus metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultMaxBodyBytes bounds run request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Engine is the part of arbor.Engine the server needs.
type Engine interface {
	Run(ctx context.Context, inputs map[string]any, opts ...arbor.RunOption) (map[string]any, error)
	Inspect() arbor.Graphs
	Info() arbor.Info
}

// Server handles the HTTP API.
type Server struct {
	Engine   Engine
	Streams  *StreamManager
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	maxBody  int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStreams shares a StreamManager whose Hooks feed the engine.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithGatherer serves g on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		s.maxBody = n
	}
}

// NewHandler creates the HTTP handler for engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{Engine: engine, maxBody: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager()
	}

	r := chi.NewRouter()
	r.Post("/run", s.Run)
	r.Get("/events/{runID}", s.SubscribeEvents)
	r.Get("/graph", s.GetGraph)
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RunRequest is the body of POST /run.
type RunRequest struct {
	Inputs   map[string]any `json:"inputs"`
	RunID    string         `json:"run_id,omitempty"`
	MaxSteps int            `json:"max_steps,omitempty"`
}

// RunResponse is the result of a completed run.
type RunResponse struct {
	RunID   string         `json:"run_id"`
	Outputs map[string]any `json:"outputs"`
	State   map[string]any `json:"state"`
}

// ErrorResponse describes a failed request.
type ErrorResponse struct {
	RunID   string   `json:"run_id,omitempty"`
	Type    string   `json:"type"`
	Error   string   `json:"error"`
	NodeID  string   `json:"node_id,omitempty"`
	Details []string `json:"details,omitempty"`
}

// Run handles POST /run. With "Accept: text/event-stream" the run's events
// are streamed and the outcome is sent as a final "result" or "error" event.
func (s *Server) Run(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Type: "invalid_request", Error: fmt.Sprintf("invalid request body: %v", err)})
		s.logger.Warn("Run: invalid request body", "err", err)
		return
	}
	if body.RunID == "" {
		body.RunID = uuid.NewString()
	}

	var opts []arbor.RunOption
	if body.MaxSteps > 0 {
		opts = append(opts, arbor.WithMaxSteps(body.MaxSteps))
	}
	ctx := domain.ContextWithRunID(r.Context(), body.RunID)

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamRun(ctx, w, body, opts)
		return
	}

	st, err := s.Engine.Run(ctx, body.Inputs, opts...)
	if err != nil {
		status, resp := s.errorResponse(body.RunID, err)
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, s.runResponse(body.RunID, st))
}

func (s *Server) streamRun(ctx context.Context, w http.ResponseWriter, body RunRequest, opts []arbor.RunOption) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Type: "internal", Error: "streaming not supported"})
		return
	}

	events, cancel := s.Streams.Subscribe(body.RunID)
	defer cancel()

	type outcome struct {
		state map[string]any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		st, err := s.Engine.Run(ctx, body.Inputs, opts...)
		done <- outcome{st, err}
	}()

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case msg := <-events:
			writeEvent(w, "", msg)
			flusher.Flush()
		case out := <-done:
			drain(w, events)
			if out.err != nil {
				_, resp := s.errorResponse(body.RunID, out.err)
				writeEvent(w, "error", mustJSON(resp))
			} else {
				writeEvent(w, "result", mustJSON(s.runResponse(body.RunID, out.state)))
			}
			flusher.Flush()
			return
		case <-ctx.Done():
			return
		}
	}
}

func drain(w io.Writer, events <-chan string) {
	for {
		select {
		case msg := <-events:
			writeEvent(w, "", msg)
		default:
			return
		}
	}
}

// SubscribeEvents handles GET /events/{runID}: an SSE stream of the events of
// a run started with that run_id.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	runID := chi.URLParam(r, "runID")

	events, cancel := s.Streams.Subscribe(runID)
	defer cancel()

	setSSEHeaders(w)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE: subscribed", "run_id", runID)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: client disconnected", "run_id", runID)
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			writeEvent(w, "", msg)
			flusher.Flush()
			if strings.Contains(msg, `"type":"`+string(domain.EventRunEnd)+`"`) {
				return
			}
		}
	}
}

// GetGraph handles GET /graph.
func (s *Server) GetGraph(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.Inspect())
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// InfoResponse is the body of GET /info.
type InfoResponse struct {
	App     string     `json:"app"`
	Version string     `json:"version"`
	Agent   arbor.Info `json:"agent"`
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{
		App:     "arbor-http",
		Version: strings.TrimSpace(arbor.Version),
		Agent:   s.Engine.Info(),
	})
}

func (s *Server) runResponse(runID string, st map[string]any) RunResponse {
	outputs := make(map[string]any)
	for _, key := range s.Engine.Inspect().Root.Outputs {
		outputs[key] = st[key]
	}
	return RunResponse{RunID: runID, Outputs: outputs, State: st}
}

// errorResponse maps the engine's error taxonomy onto HTTP statuses.
func (s *Server) errorResponse(runID string, err error) (int, ErrorResponse) {
	resp := ErrorResponse{RunID: runID, Error: err.Error()}
	status := http.StatusInternalServerError

	var (
		cfgErr  *domain.ConfigError
		runErr  *domain.RunError
		nodeErr *domain.NodeExecutionError
		aggErr  *schema.AggregateError
	)
	switch {
	case errors.As(err, &nodeErr):
		status, resp.Type, resp.NodeID = http.StatusBadGateway, "node_error", nodeErr.NodeID
	case errors.As(err, &runErr):
		status, resp.Type = http.StatusUnprocessableEntity, "run_error"
	case errors.As(err, &aggErr):
		status, resp.Type = http.StatusUnprocessableEntity, "validation_error"
		for _, e := range aggErr.Errors {
			resp.Details = append(resp.Details, e.Error())
		}
	case errors.As(err, &cfgErr):
		status, resp.Type = http.StatusBadRequest, "config_error"
	case errors.Is(err, context.DeadlineExceeded):
		status, resp.Type = http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		status, resp.Type = 499, "canceled"
	default:
		resp.Type = "internal"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("run failed", "run_id", runID, "type", resp.Type, "err", err)
	} else {
		s.logger.Warn("run rejected", "run_id", runID, "type", resp.Type, "err", err)
	}
	return status, resp
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

func writeEvent(w io.Writer, event, data string) {
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}
