// Verification HTTP handlers.
//
// This file exposes the trigger endpoints:
//   - POST /verify/text     (plain claim)
//   - POST /verify/image    (claim plus image fetched from a URL)
//   - POST /verify/upload   (claim plus base64 image bytes)
//   - POST /verify/url      (claim checked against the content of a page)
//
// Each endpoint runs synchronously and returns the verdict, or, with
// "async": true, dispatches the run to a UI surface and returns 202. A
// named surface always receives Loading and final pushes and has its
// last-verdict slot updated.
//
// A verdict with flag "Error" is still a 200: the verification ran and
// failed upstream. Only malformed input yields 4xx.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a verdict was recorded
// for (client, route, key) within the TTL, that verdict is returned with
// `Idempotency-Replayed: true` and no model call is made.
package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/veritas-backend/internal/domain"
	"github.com/tbourn/veritas-backend/internal/http/middleware"
	"github.com/tbourn/veritas-backend/internal/repo"
	"github.com/tbourn/veritas-backend/internal/services"
)

//
// DTOs
//

// VerifyTextRequest is the JSON payload for a text claim.
type VerifyTextRequest struct {
	Claim string `json:"claim" example:"The Eiffel Tower is in Rome."`
	// Surface names the UI surface that receives push updates.
	Surface string `json:"surface,omitempty" example:"popup"`
	// Async dispatches the run in the background; Surface is then required.
	Async bool `json:"async,omitempty"`
}

// VerifyImageRequest is the JSON payload for a claim about a remote image.
type VerifyImageRequest struct {
	Claim    string `json:"claim" example:"This photo shows the 2024 eclipse."`
	ImageURL string `json:"image_url" binding:"required" example:"https://example.com/eclipse.jpg"`
	Surface  string `json:"surface,omitempty"`
	Async    bool   `json:"async,omitempty"`
}

// VerifyUploadRequest is the JSON payload for a claim about uploaded bytes.
// MimeType is sniffed from the bytes when empty.
type VerifyUploadRequest struct {
	Claim       string `json:"claim"`
	ImageBase64 string `json:"image_base64" binding:"required"`
	MimeType    string `json:"mime_type,omitempty" example:"image/png"`
	Surface     string `json:"surface,omitempty"`
	Async       bool   `json:"async,omitempty"`
}

// VerifyURLRequest is the JSON payload for a page-context check.
type VerifyURLRequest struct {
	Claim   string `json:"claim" example:"The article says unemployment fell."`
	URL     string `json:"url" binding:"required" example:"https://example.com/news/article"`
	Surface string `json:"surface,omitempty"`
	Async   bool   `json:"async,omitempty"`
}

// DispatchResponse acknowledges an async verification.
type DispatchResponse struct {
	Status  string `json:"status" example:"accepted"`
	Surface string `json:"surface" example:"popup"`
	Claim   string `json:"claim"`
}

// verifyRun describes one verification request after binding.
type verifyRun struct {
	claim      string
	surface    string
	async      bool
	contextual bool
	run        services.VerifyFunc
}

//
// Handlers
//

// VerifyText godoc
// @ID          verifyText
// @Summary     Verify a text claim
// @Tags        Verify
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       body             body    handlers.VerifyTextRequest  true  "Claim"
// @Success     200  {object}  domain.Verdict
// @Success     202  {object}  handlers.DispatchResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /verify/text [post]
func (h *Handlers) VerifyText(c *gin.Context) {
	var req VerifyTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	h.verify(c, verifyRun{
		claim:   req.Claim,
		surface: req.Surface,
		async:   req.Async,
		run: func(ctx context.Context) (domain.Verdict, error) {
			return h.verifier.VerifyText(ctx, req.Claim)
		},
	})
}

// VerifyImage godoc
// @ID          verifyImage
// @Summary     Verify a claim about a remote image
// @Tags        Verify
// @Accept      json
// @Produce     json
// @Param       body  body    handlers.VerifyImageRequest  true  "Claim and image URL"
// @Success     200  {object}  domain.Verdict
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /verify/image [post]
func (h *Handlers) VerifyImage(c *gin.Context) {
	var req VerifyImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image_url required")
		return
	}
	h.verify(c, verifyRun{
		claim:   req.Claim,
		surface: req.Surface,
		async:   req.Async,
		run: func(ctx context.Context) (domain.Verdict, error) {
			return h.verifier.VerifyImageURL(ctx, req.Claim, req.ImageURL)
		},
	})
}

// VerifyUpload godoc
// @ID          verifyUpload
// @Summary     Verify a claim about uploaded image bytes
// @Tags        Verify
// @Accept      json
// @Produce     json
// @Param       body  body    handlers.VerifyUploadRequest  true  "Claim and base64 image"
// @Success     200  {object}  domain.Verdict
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     413  {object}  handlers.ErrorResponse
// @Router      /verify/upload [post]
func (h *Handlers) VerifyUpload(c *gin.Context) {
	var req VerifyUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image_base64 required")
		return
	}
	data, err := decodeImage(req.ImageBase64)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidImage, "image_base64 is not valid base64")
		return
	}
	h.verify(c, verifyRun{
		claim:   req.Claim,
		surface: req.Surface,
		async:   req.Async,
		run: func(ctx context.Context) (domain.Verdict, error) {
			return h.verifier.VerifyUpload(ctx, req.Claim, data, req.MimeType)
		},
	})
}

// VerifyURL godoc
// @ID          verifyURL
// @Summary     Verify a claim against the content of a page
// @Description Requires a cloud API key; without one the verdict is an Error.
// @Tags        Verify
// @Accept      json
// @Produce     json
// @Param       body  body    handlers.VerifyURLRequest  true  "Claim and page URL"
// @Success     200  {object}  domain.Verdict
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /verify/url [post]
func (h *Handlers) VerifyURL(c *gin.Context) {
	var req VerifyURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "url required")
		return
	}
	h.verify(c, verifyRun{
		claim:      req.Claim,
		surface:    req.Surface,
		async:      req.Async,
		contextual: true,
		run: func(ctx context.Context) (domain.Verdict, error) {
			return h.verifier.VerifyPage(ctx, req.Claim, req.URL)
		},
	})
}

// verify runs r with idempotent replay, optional dispatch to a surface, and
// input-error mapping.
func (h *Handlers) verify(c *gin.Context, r verifyRun) {
	ctx := c.Request.Context()
	r.surface = strings.TrimSpace(r.surface)

	if r.async {
		if r.surface == "" {
			fail(c, http.StatusBadRequest, ErrCodeSurfaceNeeded, "async verification requires a surface")
			return
		}
		h.dispatcher.Go(ctx, services.Dispatch{
			Surface:    r.surface,
			Claim:      r.claim,
			Contextual: r.contextual,
			Run:        r.run,
		})
		ok(c, http.StatusAccepted, DispatchResponse{Status: "accepted", Surface: r.surface, Claim: r.claim})
		return
	}

	client, route := clientID(c), middleware.RouteKey(c)
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.db != nil {
		if rec, err := repo.GetIdempotency(ctx, h.db, client, route, idemKey, time.Now().UTC()); err == nil && rec != nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, rec.Status, rec.Verdict)
			return
		}
	}

	var (
		v      domain.Verdict
		runErr error
	)
	if r.surface != "" {
		out := h.dispatcher.Run(ctx, services.Dispatch{
			Surface:    r.surface,
			Claim:      r.claim,
			Contextual: r.contextual,
			DetachPush: true,
			Run: func(ctx context.Context) (domain.Verdict, error) {
				v, err := r.run(ctx)
				runErr = err
				return v, err
			},
		})
		v = out.Verdict
	} else {
		v, runErr = r.run(ctx)
	}
	if runErr != nil {
		failErr(c, runErr, ErrCodeVerifyFailed)
		return
	}

	// Error verdicts are not replayed; a retry with the same key runs again.
	if idemKey != "" && h.db != nil && !v.IsError() {
		if _, err := repo.CreateIdempotency(ctx, h.db, client, route, idemKey, v, http.StatusOK, h.idemTTL); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not stored")
		}
	}
	ok(c, http.StatusOK, v)
}

// decodeImage accepts standard base64 with or without a data: URL prefix.
func decodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
