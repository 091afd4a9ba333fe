// Settings HTTP handlers.
//
// These endpoints stand in for the settings page of a client:
//   - GET/PUT/DELETE /credential  (cloud API key; never echoed back in full)
//   - POST /credential/test       (probe a key against the cloud model)
//   - GET/PUT /onboarding         (has the user seen onboarding)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetCredentialRequest is the JSON payload for storing an API key.
type SetCredentialRequest struct {
	Key string `json:"key" binding:"required"`
}

// TestCredentialRequest optionally names a key to test; the active key is
// used when Key is empty.
type TestCredentialRequest struct {
	Key string `json:"key,omitempty"`
}

// OnboardingState is the body of the onboarding endpoints.
type OnboardingState struct {
	Seen bool `json:"seen"`
}

// GetCredential godoc
// @ID          getCredential
// @Summary     Describe the configured API key
// @Tags        Settings
// @Produce     json
// @Success     200  {object}  services.CredentialInfo
// @Router      /credential [get]
func (h *Handlers) GetCredential(c *gin.Context) {
	info, err := h.settings.CredentialStatus(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStorageFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, info)
}

// PutCredential godoc
// @ID          putCredential
// @Summary     Store the cloud API key
// @Tags        Settings
// @Accept      json
// @Param       body  body  handlers.SetCredentialRequest  true  "API key"
// @Success     204  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /credential [put]
func (h *Handlers) PutCredential(c *gin.Context) {
	var req SetCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "key required")
		return
	}
	if err := h.settings.SetCredential(c.Request.Context(), req.Key); err != nil {
		failErr(c, err, ErrCodeStorageFailed)
		return
	}
	noContent(c)
}

// DeleteCredential godoc
// @ID          deleteCredential
// @Summary     Remove the stored API key
// @Tags        Settings
// @Success     204  "No Content"
// @Router      /credential [delete]
func (h *Handlers) DeleteCredential(c *gin.Context) {
	if err := h.settings.ClearCredential(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStorageFailed, err.Error())
		return
	}
	noContent(c)
}

// TestCredential godoc
// @ID          testCredential
// @Summary     Probe an API key
// @Description A failed probe is a 200 with valid=false and a user-facing message.
// @Tags        Settings
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.TestCredentialRequest  false  "Key to test"
// @Success     200  {object}  services.CredentialCheck
// @Failure     409  {object}  handlers.ErrorResponse  "No key configured"
// @Router      /credential/test [post]
func (h *Handlers) TestCredential(c *gin.Context) {
	var req TestCredentialRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	res, err := h.settings.TestCredential(c.Request.Context(), req.Key)
	if err != nil {
		failErr(c, err, ErrCodeStorageFailed)
		return
	}
	ok(c, http.StatusOK, res)
}

// GetOnboarding godoc
// @ID          getOnboarding
// @Summary     Read the onboarding flag
// @Tags        Settings
// @Produce     json
// @Success     200  {object}  handlers.OnboardingState
// @Router      /onboarding [get]
func (h *Handlers) GetOnboarding(c *gin.Context) {
	seen, err := h.settings.Onboarded(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStorageFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, OnboardingState{Seen: seen})
}

// PutOnboarding godoc
// @ID          putOnboarding
// @Summary     Set the onboarding flag
// @Tags        Settings
// @Accept      json
// @Param       body  body  handlers.OnboardingState  true  "Flag"
// @Success     204  "No Content"
// @Router      /onboarding [put]
func (h *Handlers) PutOnboarding(c *gin.Context) {
	var req OnboardingState
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.settings.SetOnboarded(c.Request.Context(), req.Seen); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStorageFailed, err.Error())
		return
	}
	noContent(c)
}
