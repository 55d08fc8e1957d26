// Package metrics defines the prometheus collectors of the executor.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace is the basic namespace where all metrics are defined under.
const Namespace = "mpn_executor"

// NewCounter creates a Counter metrics under the global namespace.
func NewCounter(name, subsystem, help string, labels []string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

// NewGauge creates a Gauge metrics under the global namespace.
func NewGauge(name, subsystem, help string, labels []string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

// NewHistogramWithBuckets creates a Histogram metrics with custom buckets.
func NewHistogramWithBuckets(name, subsystem, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets}, labels)
}

var (
	rounds = NewCounter("rounds_total", "sequencer",
		"Rounds by result (submitted, skipped, cancelled, failed)", []string{"result"})

	entries = NewCounter("entries_total", "bank",
		"Batch entries by kind and outcome (accepted or the rejection reason)", []string{"kind", "outcome"})

	provingDuration = NewHistogramWithBuckets("proving_seconds", "prover",
		"Time spent proving one batch", []string{"kind"},
		prometheus.ExponentialBuckets(0.5, 2, 12))

	height = NewGauge("height", "chain", "Last host chain height observed", nil)
)

// ReportRound counts a finished round.
func ReportRound(result string) {
	rounds.WithLabelValues(result).Inc()
}

// ReportEntry counts a batch entry outcome.
func ReportEntry(kind, outcome string) {
	entries.WithLabelValues(kind, outcome).Inc()
}

// ReportProving observes the duration of a proof.
func ReportProving(kind string, d time.Duration) {
	provingDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ReportHeight sets the last observed host chain height.
func ReportHeight(h uint64) {
	height.WithLabelValues().Set(float64(h))
}
