package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/veritas-backend/internal/domain"
	"github.com/tbourn/veritas-backend/internal/repo"
	"github.com/tbourn/veritas-backend/internal/services"
)

// ---------- test plumbing ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:h_"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func doJSON(r http.Handler, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---------- stubs ----------

type stubVerifier struct {
	mu    sync.Mutex
	calls []string

	verify  func(kind, text, target string) (domain.Verdict, error)
	history []domain.Verdict
	histErr error
	count   int64
	newest  int64
	cleared bool
	lastQ   string
	lastN   int
}

func (s *stubVerifier) record(kind, text, target string) (domain.Verdict, error) {
	s.mu.Lock()
	s.calls = append(s.calls, kind)
	s.mu.Unlock()
	if s.verify != nil {
		return s.verify(kind, text, target)
	}
	return domain.Verdict{Flag: domain.FlagFact, Claim: text, ReasoningBullets: []string{kind}}, nil
}

func (s *stubVerifier) VerifyText(_ context.Context, text string) (domain.Verdict, error) {
	return s.record("text", text, "")
}
func (s *stubVerifier) VerifyImageURL(_ context.Context, text, rawURL string) (domain.Verdict, error) {
	return s.record("image", text, rawURL)
}
func (s *stubVerifier) VerifyUpload(_ context.Context, text string, data []byte, mime string) (domain.Verdict, error) {
	return s.record("upload", text, string(data)+"|"+mime)
}
func (s *stubVerifier) VerifyPage(_ context.Context, text, rawURL string) (domain.Verdict, error) {
	return s.record("page", text, rawURL)
}
func (s *stubVerifier) ListHistory(_ context.Context, q string, limit int) ([]domain.Verdict, error) {
	s.lastQ, s.lastN = q, limit
	return s.history, s.histErr
}
func (s *stubVerifier) ClearHistory(context.Context) error {
	s.cleared = true
	return nil
}
func (s *stubVerifier) HistoryVersion(context.Context) (int64, int64, error) {
	return s.count, s.newest, nil
}

func (s *stubVerifier) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// stubDispatcher runs the verification inline and records dispatches.
type stubDispatcher struct {
	mu    sync.Mutex
	runs  []services.Dispatch
	async []services.Dispatch
}

func (d *stubDispatcher) Run(ctx context.Context, in services.Dispatch) services.Outcome {
	d.mu.Lock()
	d.runs = append(d.runs, in)
	d.mu.Unlock()
	v, err := in.Run(ctx)
	if err != nil {
		v = domain.Verdict{Flag: domain.FlagError, Claim: in.Claim, Message: err.Error()}
	}
	return services.Outcome{Verdict: v}
}

func (d *stubDispatcher) Go(_ context.Context, in services.Dispatch) {
	d.mu.Lock()
	d.async = append(d.async, in)
	d.mu.Unlock()
}

type stubSettings struct {
	info    services.CredentialInfo
	setErr  error
	stored  string
	cleared bool
	tested  string
	check   services.CredentialCheck
	testErr error
	seen    bool
}

func (s *stubSettings) CredentialStatus(context.Context) (services.CredentialInfo, error) {
	return s.info, nil
}
func (s *stubSettings) SetCredential(_ context.Context, key string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.stored = key
	return nil
}
func (s *stubSettings) ClearCredential(context.Context) error {
	s.cleared = true
	return nil
}
func (s *stubSettings) TestCredential(_ context.Context, key string) (services.CredentialCheck, error) {
	s.tested = key
	return s.check, s.testErr
}
func (s *stubSettings) Onboarded(context.Context) (bool, error) { return s.seen, nil }
func (s *stubSettings) SetOnboarded(_ context.Context, seen bool) error {
	s.seen = seen
	return nil
}

type stubVerdicts struct {
	v          domain.Verdict
	contextual bool
	found      bool
	err        error
}

func (s stubVerdicts) LastVerdict(context.Context) (domain.Verdict, bool, bool, error) {
	return s.v, s.contextual, s.found, s.err
}

func init() { gin.SetMode(gin.TestMode) }
