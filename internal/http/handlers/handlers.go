// Package handlers contains the HTTP transport for the verification API.
//
// Handlers are transport-thin: they bind and validate requests, delegate to
// the services layer through the small interfaces below, and translate
// results into the response envelopes defined in response.go. Concrete
// implementations live in internal/services, internal/store and
// internal/delivery; tests use stubs.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/veritas-backend/internal/delivery"
	"github.com/tbourn/veritas-backend/internal/domain"
	"github.com/tbourn/veritas-backend/internal/http/middleware"
	"github.com/tbourn/veritas-backend/internal/services"
)

// Verifier runs verifications and serves the history.
type Verifier interface {
	VerifyText(ctx context.Context, text string) (domain.Verdict, error)
	VerifyImageURL(ctx context.Context, text, rawURL string) (domain.Verdict, error)
	VerifyUpload(ctx context.Context, text string, data []byte, declaredMime string) (domain.Verdict, error)
	VerifyPage(ctx context.Context, text, rawURL string) (domain.Verdict, error)

	ListHistory(ctx context.Context, query string, limit int) ([]domain.Verdict, error)
	ClearHistory(ctx context.Context) error
	HistoryVersion(ctx context.Context) (count int64, newest int64, err error)
}

// Dispatcher runs a verification on behalf of a UI surface.
type Dispatcher interface {
	Run(ctx context.Context, d services.Dispatch) services.Outcome
	Go(ctx context.Context, d services.Dispatch)
}

// Settings manages the cloud credential and the onboarding flag.
type Settings interface {
	CredentialStatus(ctx context.Context) (services.CredentialInfo, error)
	SetCredential(ctx context.Context, key string) error
	ClearCredential(ctx context.Context) error
	TestCredential(ctx context.Context, key string) (services.CredentialCheck, error)
	Onboarded(ctx context.Context) (bool, error)
	SetOnboarded(ctx context.Context, seen bool) error
}

// LastVerdicts reads the last-verdict slot polled by UI surfaces.
type LastVerdicts interface {
	LastVerdict(ctx context.Context) (v domain.Verdict, contextual bool, ok bool, err error)
}

// Subscriber attaches SSE streams to push updates.
type Subscriber interface {
	Subscribe(surface string) *delivery.Subscription
}

// Deps bundles the collaborators of Handlers. DB may be nil, which disables
// idempotent replay.
type Deps struct {
	Verifier   Verifier
	Dispatcher Dispatcher
	Settings   Settings
	Verdicts   LastVerdicts
	Events     Subscriber

	DB             *gorm.DB
	IdempotencyTTL time.Duration
	// KeepAlive is the SSE comment interval; <= 0 uses 15s.
	KeepAlive time.Duration
}

// Handlers groups the HTTP endpoints and their dependencies.
type Handlers struct {
	verifier   Verifier
	dispatcher Dispatcher
	settings   Settings
	verdicts   LastVerdicts
	events     Subscriber

	db        *gorm.DB
	idemTTL   time.Duration
	keepAlive time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(d Deps) *Handlers {
	h := &Handlers{
		verifier:   d.Verifier,
		dispatcher: d.Dispatcher,
		settings:   d.Settings,
		verdicts:   d.Verdicts,
		events:     d.Events,
		db:         d.DB,
		idemTTL:    d.IdempotencyTTL,
		keepAlive:  d.KeepAlive,
	}
	if h.idemTTL <= 0 {
		h.idemTTL = 24 * time.Hour
	}
	if h.keepAlive <= 0 {
		h.keepAlive = 15 * time.Second
	}
	return h
}

// clientID identifies the caller for idempotency records.
func clientID(c *gin.Context) string { return middleware.ClientID(c) }
