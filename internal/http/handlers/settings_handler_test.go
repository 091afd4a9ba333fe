package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/veritas-backend/internal/services"
)

func newSettingsRouter(s *stubSettings) *gin.Engine {
	h := New(Deps{Settings: s})
	r := gin.New()
	r.GET("/credential", h.GetCredential)
	r.PUT("/credential", h.PutCredential)
	r.DELETE("/credential", h.DeleteCredential)
	r.POST("/credential/test", h.TestCredential)
	r.GET("/onboarding", h.GetOnboarding)
	r.PUT("/onboarding", h.PutOnboarding)
	return r
}

func TestCredential_GetPutDelete(t *testing.T) {
	s := &stubSettings{info: services.CredentialInfo{Configured: true, Source: "stored", Masked: "AIza…wxyz"}}
	r := newSettingsRouter(s)

	w := doJSON(r, http.MethodGet, "/credential", "")
	var info services.CredentialInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil || !info.Configured || info.Masked != "AIza…wxyz" {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}

	if w := doJSON(r, http.MethodPut, "/credential", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("put without key: %d", w.Code)
	}
	if w := doJSON(r, http.MethodPut, "/credential", `{"key":"AIzaSyExample"}`); w.Code != http.StatusNoContent || s.stored != "AIzaSyExample" {
		t.Fatalf("put: %d stored=%q", w.Code, s.stored)
	}
	if w := doJSON(r, http.MethodDelete, "/credential", ""); w.Code != http.StatusNoContent || !s.cleared {
		t.Fatalf("delete: %d", w.Code)
	}
}

func TestPutCredential_Malformed(t *testing.T) {
	s := &stubSettings{setErr: fmt.Errorf("set: %w", services.ErrCredentialFormat)}
	r := newSettingsRouter(s)
	w := doJSON(r, http.MethodPut, "/credential", `{"key":"short"}`)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), ErrCodeInvalidCredential) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestTestCredential(t *testing.T) {
	s := &stubSettings{check: services.CredentialCheck{Valid: false, Message: "API key not valid"}}
	r := newSettingsRouter(s)

	// Empty body tests the active key.
	w := doJSON(r, http.MethodPost, "/credential/test", "")
	if w.Code != http.StatusOK || s.tested != "" {
		t.Fatalf("status=%d tested=%q", w.Code, s.tested)
	}
	var res services.CredentialCheck
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || res.Valid || res.Message == "" {
		t.Fatalf("unexpected result: %s", w.Body.String())
	}

	doJSON(r, http.MethodPost, "/credential/test", `{"key":"AIzaCandidate"}`)
	if s.tested != "AIzaCandidate" {
		t.Fatalf("tested=%q", s.tested)
	}

	s.testErr = services.ErrNoCredential
	w = doJSON(r, http.MethodPost, "/credential/test", "")
	if w.Code != http.StatusConflict || !strings.Contains(w.Body.String(), ErrCodeNoCredential) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestOnboarding_RoundTrip(t *testing.T) {
	s := &stubSettings{}
	r := newSettingsRouter(s)

	if w := doJSON(r, http.MethodGet, "/onboarding", ""); !strings.Contains(w.Body.String(), `"seen":false`) {
		t.Fatalf("get: %s", w.Body.String())
	}
	if w := doJSON(r, http.MethodPut, "/onboarding", `{"seen":true}`); w.Code != http.StatusNoContent {
		t.Fatalf("put: %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/onboarding", ""); !strings.Contains(w.Body.String(), `"seen":true`) {
		t.Fatalf("get after put: %s", w.Body.String())
	}
	if w := doJSON(r, http.MethodPut, "/onboarding", `not json`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad body: %d", w.Code)
	}
}
