// Package services – Verifier
//
// This file implements Verifier, the orchestrator that turns a claim into a
// verdict. Each run is a strictly sequential pipeline:
//
//	cache check → path selection → model call → parse → commit
//
// Path selection, in order:
//  1. page context: cloud only (an Error verdict when no key is available)
//  2. cloud key present: optional on-device simplification of the claim, then
//     a grounded cloud call
//  3. no key, on-device model available: local call, marked local-only
//  4. neither: a configuration Error verdict, with no network call at all
//
// Upstream failures never surface as Go errors; they become Error verdicts
// that are delivered but never cached or stored in history. Cache and history
// failures are logged and swallowed.
//
// Observability: public methods are OpenTelemetry-instrumented and the
// pipeline feeds the veritas_* Prometheus collectors.

package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/tbourn/veritas-backend/internal/cache"
	"github.com/tbourn/veritas-backend/internal/domain"
	"github.com/tbourn/veritas-backend/internal/fetch"
	"github.com/tbourn/veritas-backend/internal/model"
	"github.com/tbourn/veritas-backend/internal/prompt"
	"github.com/tbourn/veritas-backend/internal/search"
	"github.com/tbourn/veritas-backend/internal/store"
	"github.com/tbourn/veritas-backend/internal/verdict"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Path labels used in metrics and spans.
const (
	pathCloud = "cloud"
	pathLocal = "local"
	pathCache = "cache"
	pathNone  = "none"
)

// A simplified claim is used only when it is longer than this many runes and
// shorter than simplifyMaxRatio times the original.
const (
	simplifyMinRunes = 5
	simplifyMaxRatio = 1.5
)

// CredentialSource yields the cloud API key; "" means none is configured.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

// PageFetcher retrieves page text and images for URL-based checks.
type PageFetcher interface {
	Page(ctx context.Context, rawURL string) (fetch.Page, error)
	Image(ctx context.Context, rawURL string) ([]byte, string, error)
}

// Verifier owns the result cache and history and runs verifications.
type Verifier struct {
	Cache       *cache.ResultCache
	History     store.History
	Cloud       model.Cloud
	Local       model.Local // nil disables the on-device model
	Credentials CredentialSource
	Fetcher     PageFetcher

	// Preprocess enables on-device simplification before cloud calls.
	Preprocess bool
	// Dedupe collapses concurrent cache misses for the same key into one
	// model call.
	Dedupe bool

	// Optional guards
	MaxClaimRunes int
	MaxImageBytes int64

	group singleflight.Group
}

// Verify checks a claim as given, including any attached image bytes or
// page context. It returns an error only for invalid input.
func (s *Verifier) Verify(ctx context.Context, claim domain.Claim) (domain.Verdict, error) {
	tr := otel.Tracer("services/Verifier")
	ctx, span := tr.Start(ctx, "Verify",
		trace.WithAttributes(
			attribute.Bool("claim.multimodal", claim.IsMultimodal()),
			attribute.Bool("claim.page_context", claim.HasPageContext()),
		),
	)
	defer span.End()

	text, err := s.validate(claim.Text)
	if err != nil {
		return domain.Verdict{}, err
	}
	claim.Text = text

	v := s.run(ctx, claim)
	span.SetAttributes(
		attribute.String("verdict.flag", string(v.Flag)),
		attribute.String("verdict.backend", string(v.Backend)),
		attribute.Bool("verdict.cached", v.Cached),
	)
	return v, nil
}

// VerifyText checks a text-only claim.
func (s *Verifier) VerifyText(ctx context.Context, text string) (domain.Verdict, error) {
	return s.Verify(ctx, domain.Claim{Text: text})
}

// VerifyUpload checks a claim against uploaded image bytes. declaredMime may
// be empty, in which case the type is sniffed.
func (s *Verifier) VerifyUpload(ctx context.Context, text string, data []byte, declaredMime string) (domain.Verdict, error) {
	if len(data) == 0 {
		return domain.Verdict{}, ErrInvalidImage
	}
	if s.MaxImageBytes > 0 && int64(len(data)) > s.MaxImageBytes {
		return domain.Verdict{}, ErrImageTooLarge
	}
	mt, err := fetch.ImageType(data, declaredMime)
	if err != nil {
		return domain.Verdict{}, ErrInvalidImage
	}
	return s.Verify(ctx, domain.Claim{Text: text, ImageBytes: data, ImageMimeType: mt})
}

// VerifyImageURL fetches the image at rawURL and checks the claim against
// it. A failed fetch yields an Error verdict.
func (s *Verifier) VerifyImageURL(ctx context.Context, text, rawURL string) (domain.Verdict, error) {
	tr := otel.Tracer("services/Verifier")
	ctx, span := tr.Start(ctx, "VerifyImageURL")
	defer span.End()

	text, err := s.validate(text)
	if err != nil {
		return domain.Verdict{}, err
	}
	if _, err := fetch.ValidateURL(rawURL); err != nil {
		return domain.Verdict{}, ErrInvalidURL
	}

	data, mt, err := s.Fetcher.Image(ctx, rawURL)
	if err != nil {
		logFrom(ctx).Debug().Err(err).Str("url", rawURL).Msg("image fetch failed")
		v := domain.ErrorVerdict(text, verdict.ImageFetchFailed(err), err.Error())
		verifications.WithLabelValues(pathNone, string(v.Flag)).Inc()
		return v, nil
	}
	return s.Verify(ctx, domain.Claim{Text: text, ImageBytes: data, ImageMimeType: mt})
}

// VerifyPage fetches rawURL and checks the claim against the page text.
// Page checks always need a cloud key; without one no fetch is attempted.
func (s *Verifier) VerifyPage(ctx context.Context, text, rawURL string) (domain.Verdict, error) {
	tr := otel.Tracer("services/Verifier")
	ctx, span := tr.Start(ctx, "VerifyPage")
	defer span.End()

	text, err := s.validate(text)
	if err != nil {
		return domain.Verdict{}, err
	}
	if _, err := fetch.ValidateURL(rawURL); err != nil {
		return domain.Verdict{}, ErrInvalidURL
	}

	if s.apiKey(ctx) == "" {
		v := domain.ErrorVerdict(text, verdict.MsgPageContextNeedsCloud, "")
		v.Contextual = true
		verifications.WithLabelValues(pathNone, string(v.Flag)).Inc()
		return v, nil
	}

	page, err := s.Fetcher.Page(ctx, rawURL)
	if err != nil {
		logFrom(ctx).Debug().Err(err).Str("url", rawURL).Msg("page fetch failed")
		v := domain.ErrorVerdict(text, verdict.PageFetchFailed(err), err.Error())
		v.Contextual = true
		verifications.WithLabelValues(pathNone, string(v.Flag)).Inc()
		return v, nil
	}
	return s.Verify(ctx, domain.Claim{
		Text: text,
		Page: &domain.PageContext{URL: page.FinalURL, ContentSnippet: page.Content},
	})
}

// ListHistory returns up to limit committed verdicts, newest first. A non-empty
// query ranks them by similarity to the query instead.
func (s *Verifier) ListHistory(ctx context.Context, query string, limit int) ([]domain.Verdict, error) {
	tr := otel.Tracer("services/Verifier")
	ctx, span := tr.Start(ctx, "ListHistory",
		trace.WithAttributes(
			attribute.Int("limit", limit),
			attribute.Bool("query", strings.TrimSpace(query) != ""),
		),
	)
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return s.History.List(ctx, limit)
	}
	all, err := s.History.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	return search.RankVerdicts(all, query, limit), nil
}

// ClearHistory removes every history entry. The result cache is left alone.
func (s *Verifier) ClearHistory(ctx context.Context) error {
	tr := otel.Tracer("services/Verifier")
	ctx, span := tr.Start(ctx, "ClearHistory")
	defer span.End()
	return s.History.Clear(ctx)
}

// HistoryVersion returns the entry count and newest timestamp.
func (s *Verifier) HistoryVersion(ctx context.Context) (int64, int64, error) {
	return s.History.Version(ctx)
}

// ---- pipeline ----

func (s *Verifier) validate(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyClaim
	}
	if s.MaxClaimRunes > 0 && utf8.RuneCountInString(text) > s.MaxClaimRunes {
		return "", ErrClaimTooLong
	}
	return text, nil
}

func (s *Verifier) run(ctx context.Context, claim domain.Claim) domain.Verdict {
	key := cache.Key(claim)
	if s.Cache != nil {
		if v, ok := s.Cache.Get(key); ok {
			cacheLookups.WithLabelValues("hit").Inc()
			verifications.WithLabelValues(pathCache, string(v.Flag)).Inc()
			v.Cached = true
			return v
		}
		cacheLookups.WithLabelValues("miss").Inc()
	}

	if !s.Dedupe {
		return s.resolve(ctx, key, claim)
	}
	// The shared run outlives any single caller; model clients bound it with
	// their own timeouts. Each caller still stops waiting on its own ctx.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.resolve(shared, key, claim), nil
	})
	select {
	case res := <-ch:
		return res.Val.(domain.Verdict).Clone()
	case <-ctx.Done():
		return failure(claim.Text, ctx.Err())
	}
}

func (s *Verifier) resolve(ctx context.Context, key string, claim domain.Claim) domain.Verdict {
	apiKey := s.apiKey(ctx)

	var (
		v    domain.Verdict
		path string
	)
	switch {
	case claim.HasPageContext() && apiKey == "":
		path = pathNone
		v = domain.ErrorVerdict(claim.Text, verdict.MsgPageContextNeedsCloud, "")
		v.Contextual = true
	case apiKey != "":
		path = pathCloud
		v = s.cloud(ctx, apiKey, claim)
	case s.Local != nil && s.Local.Available(ctx):
		path = pathLocal
		v = s.local(ctx, claim)
	default:
		path = pathNone
		v = domain.ErrorVerdict(claim.Text, verdict.MsgConfigurationRequired, "")
	}

	verifications.WithLabelValues(path, string(v.Flag)).Inc()
	return s.commit(ctx, key, v)
}

func (s *Verifier) cloud(ctx context.Context, apiKey string, claim domain.Claim) domain.Verdict {
	text := claim.Text
	if s.Preprocess && !claim.HasPageContext() {
		text = s.simplify(ctx, claim.Text)
	}

	req := model.CloudRequest{Grounding: !claim.HasPageContext()}
	switch {
	case claim.HasPageContext():
		req.Prompt = prompt.CloudPage(text, claim.Page.ContentSnippet, claim.Page.URL)
	case claim.IsMultimodal():
		req.Prompt = prompt.CloudMultimodal(text)
		req.Image = &model.Inline{MimeType: claim.ImageMimeType, Data: claim.ImageBytes}
	default:
		req.Prompt = prompt.CloudText(text)
	}

	start := time.Now()
	resp, err := s.Cloud.Generate(ctx, apiKey, req)
	modelLatency.WithLabelValues(pathCloud).Observe(time.Since(start).Seconds())
	if err != nil {
		logFrom(ctx).Debug().Err(err).Msg("cloud model call failed")
		v := failure(claim.Text, err)
		v.Contextual = claim.HasPageContext()
		return v
	}

	v := verdict.Parse(resp.Text, claim.Text, resp.Sources)
	v.Backend = domain.BackendCloud
	if claim.HasPageContext() {
		v.Contextual = true
		if len(v.Sources) == 1 && v.Sources[0].IsSentinel() {
			v.Sources = []domain.Source{{Title: "Contextual Source: " + claim.Page.URL, URL: claim.Page.URL}}
		}
	}
	return v
}

// simplify asks the on-device model for a single verifiable sentence and
// falls back to the original claim when the answer is unusable.
func (s *Verifier) simplify(ctx context.Context, claim string) string {
	if s.Local == nil || !s.Local.Available(ctx) {
		return claim
	}
	start := time.Now()
	out, err := s.Local.Generate(ctx, model.LocalRequest{
		Prompt:          prompt.Preprocess(claim),
		MaxOutputTokens: prompt.PreprocessTokens,
	})
	modelLatency.WithLabelValues(pathLocal).Observe(time.Since(start).Seconds())
	if err != nil {
		logFrom(ctx).Debug().Err(err).Msg("claim simplification failed")
		return claim
	}
	out = strings.TrimSpace(out)
	n := utf8.RuneCountInString(out)
	if n <= simplifyMinRunes || float64(n) >= simplifyMaxRatio*float64(utf8.RuneCountInString(claim)) {
		return claim
	}
	return out
}

func (s *Verifier) local(ctx context.Context, claim domain.Claim) domain.Verdict {
	req := model.LocalRequest{Prompt: prompt.LocalText(claim.Text), MaxOutputTokens: prompt.LocalTextTokens}
	if claim.IsMultimodal() {
		req.Prompt = prompt.LocalMultimodal(claim.Text)
		req.MaxOutputTokens = prompt.LocalMultimodalTokens
		req.Image = &model.Inline{MimeType: claim.ImageMimeType, Data: claim.ImageBytes}
	}

	start := time.Now()
	out, err := s.Local.Generate(ctx, req)
	modelLatency.WithLabelValues(pathLocal).Observe(time.Since(start).Seconds())
	if err != nil {
		logFrom(ctx).Debug().Err(err).Msg("local model call failed")
		if errors.Is(err, model.ErrLocalUnavailable) {
			return domain.ErrorVerdict(claim.Text, verdict.MsgConfigurationRequired, err.Error())
		}
		return failure(claim.Text, err)
	}

	v := verdict.Parse(out, claim.Text, nil)
	v.LocalOnly = true
	v.Notice = verdict.LocalOnlyNotice
	v.Backend = domain.BackendLocal
	return v
}

// commit stores a successful verdict in the cache and history. Storage
// failures are logged; the verdict is returned regardless.
func (s *Verifier) commit(ctx context.Context, key string, v domain.Verdict) domain.Verdict {
	if !v.Cacheable() {
		return v
	}
	if s.History != nil {
		stored, ok, err := s.History.Append(ctx, v)
		switch {
		case err != nil:
			logFrom(ctx).Warn().Err(err).Msg("history append failed")
		case ok:
			v.ID = stored.ID
			v.Timestamp = stored.Timestamp
		}
	}
	if s.Cache != nil {
		s.Cache.Put(key, v)
	}
	return v
}

// failure converts a model error into an Error verdict.
func failure(claim string, err error) domain.Verdict {
	var (
		apiErr *model.APIError
		empty  *model.EmptyCandidateError
		msg    string
	)
	switch {
	case errors.As(err, &apiErr):
		msg = verdict.UpstreamError(apiErr.Message, apiErr.Status)
	case errors.As(err, &empty):
		if empty.BlockReason != "" {
			msg = verdict.SafetyBlocked(empty.BlockReason)
		} else {
			msg = verdict.MsgEmptyResponse
		}
	default:
		msg = verdict.TransportError(err)
	}
	return domain.ErrorVerdict(claim, msg, err.Error())
}

func (s *Verifier) apiKey(ctx context.Context) string {
	if s.Credentials == nil {
		return ""
	}
	key, err := s.Credentials.Credential(ctx)
	if err != nil {
		logFrom(ctx).Warn().Err(err).Msg("credential lookup failed")
		return ""
	}
	return strings.TrimSpace(key)
}

// logFrom returns the request-scoped logger when one is attached to ctx and
// the global logger otherwise.
func logFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
