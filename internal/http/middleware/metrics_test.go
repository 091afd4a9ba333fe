package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStatusClass(t *testing.T) {
	for code, want := range map[int]string{200: "2xx", 204: "2xx", 304: "3xx", 428: "4xx", 502: "5xx", 0: "other", 700: "other"} {
		if got := statusClass(code); got != want {
			t.Errorf("statusClass(%d) = %q; want %q", code, got, want)
		}
	}
}

func TestMetrics_RouteLabels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/history", func(c *gin.Context) { c.JSON(http.StatusOK, []string{}) })
	r.DELETE("/history", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	ok := httpRequests.WithLabelValues("GET", "/history", "2xx")
	del := httpRequests.WithLabelValues("DELETE", "/history", "2xx")
	miss := httpRequests.WithLabelValues("GET", "unmatched", "4xx")
	baseOK, baseDel, baseMiss := testutil.ToFloat64(ok), testutil.ToFloat64(del), testutil.ToFloat64(miss)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/history", nil),
		httptest.NewRequest(http.MethodDelete, "/history", nil),
		httptest.NewRequest(http.MethodGet, "/wp-login.php", nil),
		httptest.NewRequest(http.MethodGet, "/.env", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(ok) - baseOK; got != 1 {
		t.Fatalf("GET /history delta = %v", got)
	}
	if got := testutil.ToFloat64(del) - baseDel; got != 1 {
		t.Fatalf("DELETE /history delta = %v", got)
	}
	if got := testutil.ToFloat64(miss) - baseMiss; got != 2 {
		t.Fatalf("unmatched delta = %v; want 2", got)
	}
	if got := testutil.ToFloat64(httpActive.WithLabelValues("request")); got != 0 {
		t.Fatalf("active requests = %v after completion", got)
	}
}

func TestMetrics_StreamsAreTrackedSeparately(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())

	var during float64
	r.GET("/events/:surface", func(c *gin.Context) {
		during = testutil.ToFloat64(httpActive.WithLabelValues("stream"))
		c.Status(http.StatusOK)
	})

	base := testutil.ToFloat64(httpActive.WithLabelValues("stream"))
	req := httptest.NewRequest(http.MethodGet, "/events/popup", nil)
	req.Header.Set("Accept", "text/event-stream")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if during != base+1 {
		t.Fatalf("streams during handler = %v; want %v", during, base+1)
	}
	if got := testutil.ToFloat64(httpActive.WithLabelValues("stream")); got != base {
		t.Fatalf("streams after handler = %v; want %v", got, base)
	}
	if httpDuration.DeleteLabelValues("GET", "/events/:surface") {
		t.Fatal("stream latency observed")
	}
	if testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/events/:surface", "2xx")) == 0 {
		t.Fatal("stream request not counted")
	}
}

func TestMetrics_RateLimitedCounter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(0.001, 1, KeyByClientOrIP())
	r := gin.New()
	r.Use(rl.Handler())
	r.POST("/verify/text", func(c *gin.Context) { c.Status(http.StatusOK) })

	base := testutil.ToFloat64(rateLimited)
	for i := 0; i < 3; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/verify/text", nil))
	}
	if got := testutil.ToFloat64(rateLimited); got != base+2 {
		t.Fatalf("rate limited = %v; want %v", got, base+2)
	}
}
