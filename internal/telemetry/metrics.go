// Package telemetry exposes campaign counters as Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the instrument set for one campaign process.
type Metrics struct {
	RoundsTotal      prometheus.Counter
	TargetsFuzzed    prometheus.Counter
	BugsFound        prometheus.Counter
	EvidenceCleared  prometheus.Counter
	InferenceSeconds prometheus.Histogram
}

// New registers the campaign metrics with the given registerer. Passing nil
// uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		RoundsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "bayzzer_rounds_total",
			Help: "Completed campaign rounds.",
		}),
		TargetsFuzzed: f.NewCounter(prometheus.CounterOpts{
			Name: "bayzzer_targets_fuzzed_total",
			Help: "Targets delegated to the executor.",
		}),
		BugsFound: f.NewCounter(prometheus.CounterOpts{
			Name: "bayzzer_bugs_found_total",
			Help: "Unique confirmed bugs.",
		}),
		EvidenceCleared: f.NewCounter(prometheus.CounterOpts{
			Name: "bayzzer_evidence_cleared_total",
			Help: "Negative evidence entries removed by reconstruction.",
		}),
		InferenceSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bayzzer_inference_seconds",
			Help:    "Wall time of per-round marginal queries.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
}
