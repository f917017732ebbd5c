// Package metrics counts sweep activity with Prometheus collectors and
// exports them in the text exposition format next to the result file, so
// a node_exporter textfile collector can pick them up.
//
// All methods are safe to call on a nil *SweepMetrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/heimdall-bench/heimdall/bench/trace"
)

const (
	metricsNamespace = "heimdall"
	sweepSubsystem   = "sweep"
)

// Tuple status label values.
const (
	StatusMeasured = "measured"
	StatusNoData   = "no_data"
	StatusAborted  = "aborted"
)

// SweepMetrics holds the collectors of one sweep.
type SweepMetrics struct {
	registry *prometheus.Registry

	// InvocationsTotal counts benchmark invocations.
	// Labels: outcome (succeeded, timed_out, non_zero_exit, launch_failure, canceled)
	InvocationsTotal *prometheus.CounterVec

	// SamplesTotal counts extracted timing samples.
	SamplesTotal prometheus.Counter

	// InvocationDurationSeconds measures wall time per invocation.
	// Labels: outcome
	InvocationDurationSeconds *prometheus.HistogramVec

	// TuplesTotal counts finished parameter tuples.
	// Labels: status (measured, no_data, aborted)
	TuplesTotal *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *SweepMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &SweepMetrics{
		registry: reg,
		InvocationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: sweepSubsystem,
			Name:      "invocations_total",
			Help:      "Benchmark invocations by outcome.",
		}, []string{"outcome"}),
		SamplesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: sweepSubsystem,
			Name:      "samples_total",
			Help:      "Timing samples extracted from benchmark output.",
		}),
		InvocationDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: sweepSubsystem,
			Name:      "invocation_duration_seconds",
			Help:      "Wall time of benchmark invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"outcome"}),
		TuplesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: sweepSubsystem,
			Name:      "tuples_total",
			Help:      "Finished parameter tuples by status.",
		}, []string{"status"}),
	}
}

// Registry exposes the private registry.
func (m *SweepMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordAttempt counts one invocation.
func (m *SweepMetrics) RecordAttempt(rec trace.AttemptRecord) {
	if m == nil {
		return
	}
	m.InvocationsTotal.WithLabelValues(rec.Outcome).Inc()
	m.InvocationDurationSeconds.WithLabelValues(rec.Outcome).Observe(rec.Duration.Seconds())
	m.SamplesTotal.Add(float64(len(rec.Samples)))
}

// RecordTuple counts one finished tuple.
func (m *SweepMetrics) RecordTuple(rec trace.TupleRecord) {
	if m == nil {
		return
	}
	status := StatusMeasured
	switch {
	case rec.Defined:
	case rec.Aborted:
		status = StatusAborted
	default:
		status = StatusNoData
	}
	m.TuplesTotal.WithLabelValues(status).Inc()
}

// WriteTextfile writes every metric to path atomically.
func (m *SweepMetrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
