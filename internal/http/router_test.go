package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/veritas-backend/internal/config"
	"github.com/tbourn/veritas-backend/internal/domain"
	"github.com/tbourn/veritas-backend/internal/http/handlers"
	"github.com/tbourn/veritas-backend/internal/http/middleware"
	"github.com/tbourn/veritas-backend/internal/repo"
)

// --- stub verifier counting model invocations ---
type stubVerifier struct {
	calls atomic.Int32
}

func (s *stubVerifier) VerifyText(_ context.Context, text string) (domain.Verdict, error) {
	s.calls.Add(1)
	return domain.Verdict{Flag: domain.FlagFact, Claim: text, ReasoningBullets: []string{"ok"}}, nil
}
func (s *stubVerifier) VerifyImageURL(ctx context.Context, text, _ string) (domain.Verdict, error) {
	return s.VerifyText(ctx, text)
}
func (s *stubVerifier) VerifyUpload(ctx context.Context, text string, _ []byte, _ string) (domain.Verdict, error) {
	return s.VerifyText(ctx, text)
}
func (s *stubVerifier) VerifyPage(ctx context.Context, text, _ string) (domain.Verdict, error) {
	return s.VerifyText(ctx, text)
}
func (s *stubVerifier) ListHistory(context.Context, string, int) ([]domain.Verdict, error) {
	return nil, nil
}
func (s *stubVerifier) ClearHistory(context.Context) error { return nil }
func (s *stubVerifier) HistoryVersion(context.Context) (int64, int64, error) {
	return 0, 0, nil
}

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig(base string) config.Config {
	return config.Config{
		APIBasePath:    base,
		RateRPS:        100,
		RateBurst:      10,
		Security:       config.SecurityConfig{EnableHSTS: false},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
		IdempotencyTTL: time.Hour,
	}
}

func newRouter(t *testing.T, cfg config.Config, v handlers.Verifier, db *gorm.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, handlers.Deps{Verifier: v, DB: db}, cfg)
	return r
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r := newRouter(t, testConfig("/api/v1"), &stubVerifier{}, newTestDB(t))

	// /health works
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if got := w.Header().Get("Cache-Control"); !strings.Contains(got, "no-store") {
		t.Fatalf("expected no-store, got %q", got)
	}

	// history is revalidated, not forbidden from caching
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))
	if w.Code != http.StatusOK || w.Header().Get("Cache-Control") != "private, no-cache" {
		t.Fatalf("GET /history = %d, Cache-Control %q", w.Code, w.Header().Get("Cache-Control"))
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"code":"not_found"`) {
		t.Fatalf("GET /nope = %d %s", w.Code, w.Body.String())
	}

	// NoMethod → 405 (POST /health)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig("/api/v2")
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"chrome-extension://abc"}}
	r := newRouter(t, cfg, &stubVerifier{}, newTestDB(t))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "chrome-extension://abc")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "chrome-extension://abc" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	// Unknown origin is not echoed.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "https://evil.example" {
		t.Fatalf("unexpected ACAO echo for unknown origin")
	}
}

func TestRegisterRoutes_VerifyText_RoundTrip(t *testing.T) {
	v := &stubVerifier{}
	r := newRouter(t, testConfig("/api/v1"), v, newTestDB(t))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, postJSON("/api/v1/verify/text", `{"claim":"The Eiffel Tower is in Paris."}`))
	if w.Code != http.StatusOK {
		t.Fatalf("POST /verify/text = %d %s", w.Code, w.Body.String())
	}
	var got domain.Verdict
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Flag != domain.FlagFact || got.Claim != "The Eiffel Tower is in Paris." {
		t.Fatalf("unexpected verdict: %+v", got)
	}

	// Async without a surface is rejected before dispatch.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, postJSON("/api/v1/verify/text", `{"claim":"x","async":true}`))
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "surface_required") {
		t.Fatalf("async without surface = %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_IdempotentReplay(t *testing.T) {
	v := &stubVerifier{}
	db := newTestDB(t)
	r := newRouter(t, testConfig("/api/v1"), v, db)

	send := func() *httptest.ResponseRecorder {
		req := postJSON("/api/v1/verify/text", `{"claim":"Water boils at 100C at sea level."}`)
		req.Header.Set(middleware.HeaderIdempotencyKey, "retry-1")
		req.Header.Set("X-Client-ID", "popup")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := send()
	if first.Code != http.StatusOK || first.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("first = %d replayed=%q", first.Code, first.Header().Get("Idempotency-Replayed"))
	}
	second := send()
	if second.Code != http.StatusOK || second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("second = %d replayed=%q", second.Code, second.Header().Get("Idempotency-Replayed"))
	}
	if n := v.calls.Load(); n != 1 {
		t.Fatalf("model invoked %d times; want 1", n)
	}

	var rec domain.Idempotency
	if err := db.First(&rec).Error; err != nil {
		t.Fatalf("idempotency row: %v", err)
	}
	if rec.ClientID != "popup" || rec.Route != "/api/v1/verify/text" {
		t.Fatalf("unexpected record: client=%q route=%q", rec.ClientID, rec.Route)
	}
}

func TestRegisterRoutes_IdempotencyLookup_DBErrorStillServes(t *testing.T) {
	v := &stubVerifier{}
	db := newTestDB(t)
	r := newRouter(t, testConfig("/api/v1"), v, db)

	// Force queries to fail by closing the underlying connection.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	req := postJSON("/api/v1/verify/text", `{"claim":"x"}`)
	req.Header.Set(middleware.HeaderIdempotencyKey, "force-error")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("expected fresh 200, got %d replayed=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}
}

func TestRegisterRoutes_JWTGuardsAPIOnly(t *testing.T) {
	cfg := testConfig("/api/v1")
	cfg.JWTSecret = "s3cret"
	r := newRouter(t, cfg, &stubVerifier{}, newTestDB(t))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, postJSON("/api/v1/verify/text", `{"claim":"x"}`))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/health must stay public, got %d", w.Code)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix_and_joinPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}

	if joinPath("/", "/events") != "/events" || joinPath("/api/v1", "/events") != "/api/v1/events" {
		t.Fatalf("joinPath mismatch")
	}
}

// Smoke test that a request traverses the full middleware pipeline.
func TestPipeline_Smoke(t *testing.T) {
	cfg := testConfig("/api/v1")
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour}
	r := newRouter(t, cfg, &stubVerifier{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /health = %d", w.Code)
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains" {
		t.Fatalf("HSTS = %q", got)
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Fatal("missing CSP")
	}
}
