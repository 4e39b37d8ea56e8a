package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(quotaDenialsTotal, moderationBlocksTotal) }

var (
	quotaDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_denials_total",
			Help: "Dispatches denied by the quota gate, labeled by ceiling.",
		},
		[]string{"feature", "reason"}, // monthly_count | monthly_cost | daily_count | feature_disabled
	)

	moderationBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_blocks_total",
			Help: "Dispatches blocked by content moderation.",
		},
		[]string{"feature"},
	)
)

func IncQuotaDenial(feature, reason string) {
	quotaDenialsTotal.WithLabelValues(norm(feature), norm(reason)).Inc()
}

func IncModerationBlock(feature string) {
	moderationBlocksTotal.WithLabelValues(norm(feature)).Inc()
}
