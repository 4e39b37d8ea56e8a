package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		generationsTotal,
		generationLatencyMs,
		generationCostCents,
	)
}

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generations_total",
			Help: "Generation attempts per feature/provider/outcome.",
		},
		[]string{"feature", "provider", "outcome"}, // success|failed|cached|rejected|denied
	)

	generationLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_latency_ms",
			Help:    "Provider call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 180000},
		},
		[]string{"feature", "provider", "success"},
	)

	generationCostCents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_cost_cents",
			Help: "Total cost in cents billed per feature/provider.",
		},
		[]string{"feature", "provider"},
	)
)

// ObserveGeneration records one provider invocation.
func ObserveGeneration(feature, provider string, latencyMs int64, costCents int64, success bool) {
	outcome := "failed"
	if success {
		outcome = "success"
	}
	generationsTotal.WithLabelValues(norm(feature), norm(provider), outcome).Inc()
	generationLatencyMs.WithLabelValues(norm(feature), norm(provider), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
	if success && costCents > 0 {
		generationCostCents.WithLabelValues(norm(feature), norm(provider)).Add(float64(costCents))
	}
}

// IncDispatchOutcome counts non-provider dispatch outcomes (cached,
// rejected, denied, deferred).
func IncDispatchOutcome(feature, outcome string) {
	generationsTotal.WithLabelValues(norm(feature), "none", norm(outcome)).Inc()
}
