package observability

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records run, node and call counters and durations.
type Metrics struct {
	Runs         *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	NodeVisits   *prometheus.CounterVec
	NodeDuration *prometheus.HistogramVec
	Calls        *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbor_runs_total",
			Help: "Total number of runs by graph and status.",
		}, []string{"graph", "status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbor_run_duration_seconds",
			Help:    "Duration of runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"graph"}),
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbor_node_visits_total",
			Help: "Total number of node executions by outcome.",
		}, []string{"graph", "node_id", "node_type", "status"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbor_node_duration_seconds",
			Help:    "Duration of node executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"graph", "node_type"}),
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbor_calls_total",
			Help: "Total number of tool and llm call attempts by outcome.",
		}, []string{"kind", "name", "status"}),
		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbor_call_duration_seconds",
			Help:    "Duration of tool and llm call attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "name"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Runs, m.RunDuration, m.NodeVisits, m.NodeDuration, m.Calls, m.CallDuration}
}

func status(failed bool) string {
	if failed {
		return "error"
	}
	return "ok"
}

// Hooks returns the lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunEnd: func(_ context.Context, e *domain.RunEvent) {
			m.Runs.WithLabelValues(e.Graph, status(e.Err != nil)).Inc()
			m.RunDuration.WithLabelValues(e.Graph).Observe(e.Duration.Seconds())
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(e.Graph, e.NodeID, e.NodeType, status(!e.Success)).Inc()
			m.NodeDuration.WithLabelValues(e.Graph, e.NodeType).Observe(e.Duration.Seconds())
		},
		OnToolReturn: m.callObserver("tool"),
		OnLLMReturn:  m.callObserver("llm"),
	}
}

func (m *Metrics) callObserver(kind string) func(context.Context, *domain.ToolEvent) {
	return func(_ context.Context, e *domain.ToolEvent) {
		m.Calls.WithLabelValues(kind, e.ToolName, status(e.IsError)).Inc()
		m.CallDuration.WithLabelValues(kind, e.ToolName).Observe(e.Duration.Seconds())
	}
}
