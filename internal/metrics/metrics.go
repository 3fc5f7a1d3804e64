// Package metrics exposes Prometheus collectors for optimization runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/optplay/internal/optimization"
)

const namespace = "optplay"

// Metrics groups the run collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	iterations  *prometheus.CounterVec
	evaluations *prometheus.CounterVec
	runLength   *prometheus.HistogramVec
	duration    *prometheus.HistogramVec
	active      prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished optimization runs by method and outcome.",
		}, []string{"method", "status"}),
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Iterations observed across all runs.",
		}, []string{"method"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objective_evaluations_total",
			Help:      "Objective evaluations by method and kind (value or gradient).",
		}, []string{"method", "kind"}),
		runLength: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_iterations",
			Help:      "Iterations per finished run.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"method"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of finished runs.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"method"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Runs currently executing.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.runs, m.iterations, m.evaluations, m.runLength, m.duration, m.active} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// RunStarted marks a run as executing.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

// Outcome summarizes a finished run.
type Outcome struct {
	Method        string
	Status        string
	Iterations    int
	ValueCalls    int64
	GradientCalls int64
	Duration      time.Duration
}

// RunFinished records a finished run, successful or not.
func (m *Metrics) RunFinished(o Outcome) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.runs.WithLabelValues(o.Method, o.Status).Inc()
	m.evaluations.WithLabelValues(o.Method, "value").Add(float64(o.ValueCalls))
	m.evaluations.WithLabelValues(o.Method, "gradient").Add(float64(o.GradientCalls))
	m.duration.WithLabelValues(o.Method).Observe(o.Duration.Seconds())
	if o.Iterations > 0 {
		m.runLength.WithLabelValues(o.Method).Observe(float64(o.Iterations))
	}
}

// Observer counts iterations of method as they happen.
func (m *Metrics) Observer(method string) optimization.Observer {
	if m == nil {
		return optimization.ObserverFunc(func(optimization.IterationRecord) {})
	}
	c := m.iterations.WithLabelValues(method)
	return optimization.ObserverFunc(func(optimization.IterationRecord) {
		c.Inc()
	})
}
