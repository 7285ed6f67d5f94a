package bench

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "rasch"

const benchSubsystem = "bench"

// Metrics holds the Prometheus collectors of a benchmark. Each Metrics owns
// its registry so batches never share counters.
type Metrics struct {
	registry *prometheus.Registry

	// RunsTotal counts runs by encoding and terminal state.
	RunsTotal *prometheus.CounterVec

	// RunDurationSeconds measures wall-clock time per run.
	RunDurationSeconds *prometheus.HistogramVec

	// SearchChoicesTotal counts expanded search nodes by encoding.
	SearchChoicesTotal *prometheus.CounterVec

	// SearchConflictsTotal counts rejected moves by encoding.
	SearchConflictsTotal *prometheus.CounterVec
}

// NewMetrics registers the benchmark collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: benchSubsystem,
			Name:      "runs_total",
			Help:      "Benchmark runs by encoding and terminal state",
		}, []string{"encoding", "state"}),
		RunDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: benchSubsystem,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of one solve-and-replay run",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"encoding"}),
		SearchChoicesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: benchSubsystem,
			Name:      "search_choices_total",
			Help:      "Search nodes expanded by the solver",
		}, []string{"encoding"}),
		SearchConflictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: benchSubsystem,
			Name:      "search_conflicts_total",
			Help:      "Moves rejected by a reservation during search",
		}, []string{"encoding"}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe records one finished entry.
func (m *Metrics) Observe(encoding string, e Entry, d time.Duration) {
	m.RunsTotal.WithLabelValues(encoding, string(e.State)).Inc()
	m.RunDurationSeconds.WithLabelValues(encoding).Observe(d.Seconds())
	m.SearchChoicesTotal.WithLabelValues(encoding).Add(float64(e.Solving.Solvers.Choices))
	m.SearchConflictsTotal.WithLabelValues(encoding).Add(float64(e.Solving.Solvers.Conflicts))
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
