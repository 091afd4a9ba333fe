package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Verification calls run for seconds, so latency buckets extend past the
// Prometheus defaults.
var latencyBuckets = []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 20, 40}

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veritas",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status class.",
	}, []string{"method", "route", "class"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "veritas",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of non-streaming HTTP requests.",
		Buckets:   latencyBuckets,
	}, []string{"method", "route"})

	httpActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "veritas",
		Subsystem: "http",
		Name:      "active_requests",
		Help:      "Requests currently being served, split by kind (request, stream).",
	}, []string{"kind"})

	rateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "veritas",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected with 429 by the rate limiter.",
	})
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, httpActive, rateLimited)
}

// Metrics instruments every request. Unmatched paths share the "unmatched"
// route label so scanners cannot grow the series set. Event streams are
// counted under kind="stream" and kept out of the latency histogram.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		kind := "request"
		if isEventStream(c) {
			kind = "stream"
		}

		active := httpActive.WithLabelValues(kind)
		active.Inc()
		start := time.Now()
		c.Next()
		active.Dec()

		method := c.Request.Method
		httpRequests.WithLabelValues(method, route, statusClass(c.Writer.Status())).Inc()
		if kind == "request" {
			httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		}
	}
}

func isEventStream(c *gin.Context) bool {
	return c.Request.Method == "GET" && strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}

// statusClass maps 204 to "2xx" and so on.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
