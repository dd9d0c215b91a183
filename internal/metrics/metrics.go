// Package metrics exposes the engine's Prometheus instrumentation: rule
// executions, memoization hits, invalidations and in-flight work. Each App
// owns an isolated registry so parallel test instances never collide on
// the default global one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the engine's collectors. All methods are safe on a nil
// receiver so instrumentation can be disabled by simply not configuring it.
type Metrics struct {
	registry    *prometheus.Registry
	executions  prometheus.Counter
	memoHits    prometheus.Counter
	failures    prometheus.Counter
	invalidated prometheus.Counter
	inFlight    prometheus.Gauge
}

// New creates and registers the engine collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		executions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forgegrid_node_executions_total",
			Help: "Rule bodies executed (memoization misses).",
		}),
		memoHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forgegrid_memo_hits_total",
			Help: "Requests satisfied by an already-completed node.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forgegrid_node_failures_total",
			Help: "Rule bodies that completed with an error.",
		}),
		invalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forgegrid_nodes_invalidated_total",
			Help: "Nodes removed by invalidation, including transitive dependents.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forgegrid_nodes_in_flight",
			Help: "Nodes currently running a rule body.",
		}),
	}
	reg.MustRegister(m.executions, m.memoHits, m.failures, m.invalidated, m.inFlight)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncExecutions counts one rule body execution.
func (m *Metrics) IncExecutions() {
	if m != nil {
		m.executions.Inc()
	}
}

// IncMemoHits counts one memoized result reuse.
func (m *Metrics) IncMemoHits() {
	if m != nil {
		m.memoHits.Inc()
	}
}

// IncFailures counts one failed rule body.
func (m *Metrics) IncFailures() {
	if m != nil {
		m.failures.Inc()
	}
}

// AddInvalidated counts nodes removed by one invalidation pass.
func (m *Metrics) AddInvalidated(n int) {
	if m != nil {
		m.invalidated.Add(float64(n))
	}
}

// ExecutionStarted marks a rule body entering execution.
func (m *Metrics) ExecutionStarted() {
	if m != nil {
		m.inFlight.Inc()
	}
}

// ExecutionFinished marks a rule body leaving execution.
func (m *Metrics) ExecutionFinished() {
	if m != nil {
		m.inFlight.Dec()
	}
}
