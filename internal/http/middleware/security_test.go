package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(opt SecurityOptions, req *http.Request) http.Header {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(opt))
	r.NoRoute(func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveSecurity(SecurityOptions{}, httptest.NewRequest(http.MethodGet, "/api/v1/credential", nil))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"Content-Security-Policy": apiCSP,
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Fatalf("%s = %q; want %q", k, got, v)
		}
	}
	for _, k := range []string{"Permissions-Policy", "Cache-Control", "Strict-Transport-Security"} {
		if h.Get(k) != "" {
			t.Fatalf("unexpected %s: %q", k, h.Get(k))
		}
	}
}

func TestSecurityHeaders_CachePolicyByPath(t *testing.T) {
	opt := SecurityOptions{NoStore: true, RevalidatePaths: []string{"/api/v1/history"}}

	cases := map[string]string{
		"/api/v1/credential":     "no-store",
		"/api/v1/history":        "private, no-cache",
		"/api/v1/history/":       "private, no-cache",
		"/api/v1/history?q=moon": "private, no-cache",
		"/api/v1/historyx":       "no-store",
	}
	for path, want := range cases {
		h := serveSecurity(opt, httptest.NewRequest(http.MethodGet, path, nil))
		if got := h.Get("Cache-Control"); got != want {
			t.Fatalf("%s: Cache-Control = %q; want %q", path, got, want)
		}
		if want == "no-store" && h.Get("Pragma") != "no-cache" {
			t.Fatalf("%s: missing Pragma", path)
		}
	}
}

func TestSecurityHeaders_Policy(t *testing.T) {
	h := serveSecurity(SecurityOptions{EnablePolicy: true}, httptest.NewRequest(http.MethodGet, "/", nil))
	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers missing: %#v", h)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour}

	plain := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := serveSecurity(opt, plain).Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("HSTS over plain HTTP: %q", got)
	}

	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	direct.TLS = &tls.ConnectionState{}
	if got := serveSecurity(opt, direct).Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains" {
		t.Fatalf("direct TLS HSTS = %q", got)
	}

	proxied := httptest.NewRequest(http.MethodGet, "/", nil)
	proxied.Header.Set("X-Forwarded-Proto", "HTTPS")
	opt.HSTSMaxAge = 0
	if got := serveSecurity(opt, proxied).Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains" {
		t.Fatalf("proxied HSTS = %q", got)
	}
}
