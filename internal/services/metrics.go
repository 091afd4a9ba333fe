package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// verifications counts finished verifications by model path and flag.
	verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veritas_verifications_total",
			Help: "Completed verifications by path (cloud, local, cache, none) and flag.",
		},
		[]string{"path", "flag"},
	)

	// cacheLookups counts result cache lookups by result (hit, miss).
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veritas_cache_lookups_total",
			Help: "Result cache lookups by result.",
		},
		[]string{"result"},
	)

	// modelLatency records model call duration in seconds. Model calls are
	// slow, so the buckets reach well past the HTTP defaults.
	modelLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veritas_model_request_duration_seconds",
			Help:    "Duration of model requests in seconds by backend.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40, 60},
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(verifications, cacheLookups, modelLatency)
}
