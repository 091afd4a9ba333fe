// Last-verdict and push endpoints.
//
//   - GET /verdicts/last      (poll the last-verdict slot)
//   - GET /events/{surface}   (Server-Sent Events: "loading" and "final")
//
// Push is best effort. A surface that connects late, or misses an event,
// converges by polling /verdicts/last.
package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/veritas-backend/internal/domain"
)

// LastVerdictResponse is the polled state of a surface.
type LastVerdictResponse struct {
	Verdict    domain.Verdict `json:"verdict"`
	Contextual bool           `json:"contextual"`
}

// LastVerdict godoc
// @ID          lastVerdict
// @Summary     Read the last verdict
// @Description Returns the Loading placeholder while a dispatched verification runs.
// @Tags        Verdicts
// @Produce     json
// @Success     200  {object}  handlers.LastVerdictResponse
// @Failure     404  {object}  handlers.ErrorResponse  "No verdict yet"
// @Router      /verdicts/last [get]
func (h *Handlers) LastVerdict(c *gin.Context) {
	v, contextual, found, err := h.verdicts.LastVerdict(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStorageFailed, err.Error())
		return
	}
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no verdict yet")
		return
	}
	ok(c, http.StatusOK, LastVerdictResponse{Verdict: v, Contextual: contextual})
}

// Events godoc
// @ID          events
// @Summary     Subscribe to push updates for a surface
// @Description Server-Sent Events stream; event names are "loading" and "final".
// @Tags        Verdicts
// @Produce     text/event-stream
// @Param       surface  path  string  true  "Surface name"
// @Router      /events/{surface} [get]
func (h *Handlers) Events(c *gin.Context) {
	surface := strings.TrimSpace(c.Param("surface"))
	if surface == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "surface required")
		return
	}

	sub := h.events.Subscribe(surface)
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	tick := time.NewTicker(h.keepAlive)
	defer tick.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, open := <-sub.C:
			if !open {
				return false
			}
			c.SSEvent(msg.Kind, msg)
			return true
		case <-tick.C:
			_, _ = io.WriteString(w, ": keep-alive\n\n")
			return true
		}
	})
}
