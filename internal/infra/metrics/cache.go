package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal, cacheEvictionsTotal, cacheSizeBytes) }

var (
	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Tracks cache hits and misses for various caches.",
		},
		[]string{"cache", "result"}, // e.g., cache="result", result="hit"
	)

	cacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Entries removed from the result cache.",
		},
		[]string{"reason"}, // expired | evicted
	)

	cacheSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_size_bytes",
			Help: "Total stored artifact bytes tracked by the result cache.",
		},
	)
)

func IncCacheRequest(cacheName, result string) {
	cacheRequestsTotal.WithLabelValues(norm(cacheName), norm(result)).Inc()
}

func AddCacheEvictions(reason string, n int64) {
	if n > 0 {
		cacheEvictionsTotal.WithLabelValues(norm(reason)).Add(float64(n))
	}
}

func SetCacheSize(bytes int64) { cacheSizeBytes.Set(float64(bytes)) }
