// History HTTP handlers.
//
//   - GET    /history   (newest first; ?q= ranks by similarity, ?limit= caps)
//   - DELETE /history   (requires X-Confirm: true)
//
// GET supports a weak ETag derived from the history version and the query,
// and returns 304 when If-None-Match matches.
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/OneOfOne/xxhash"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/veritas-backend/internal/domain"
	"github.com/tbourn/veritas-backend/internal/utils"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryResponse wraps the history entries.
type HistoryResponse struct {
	Entries []domain.Verdict `json:"entries"`
	Count   int              `json:"count"`
	Query   string           `json:"query,omitempty"`
}

// ListHistory godoc
// @ID          listHistory
// @Summary     List verification history
// @Description Newest first. With q, entries are ranked by similarity to q instead.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        History
// @Produce     json
// @Param       q      query  string  false "Similarity query"
// @Param       limit  query  int     false "Max entries"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.HistoryResponse
// @Success     304  "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /history [get]
func (h *Handlers) ListHistory(c *gin.Context) {
	ctx := c.Request.Context()
	q := strings.TrimSpace(c.Query("q"))
	limit := utils.ClampInt(utils.AtoiDefault(c.Query("limit"), defaultHistoryLimit), 1, maxHistoryLimit)

	// ETag pre-check (best effort).
	if count, newest, err := h.verifier.HistoryVersion(ctx); err == nil {
		etag := fmt.Sprintf(`W/"history:%d:%d:%d:%x"`, count, newest, limit, xxhash.ChecksumString64(q))
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.verifier.ListHistory(ctx, q, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeHistoryFailed, err.Error())
		return
	}
	if items == nil {
		items = []domain.Verdict{}
	}
	ok(c, http.StatusOK, HistoryResponse{Entries: items, Count: len(items), Query: q})
}

// ClearHistory godoc
// @ID          clearHistory
// @Summary     Clear verification history
// @Description The cache is left intact. Requires the X-Confirm: true header.
// @Tags        History
// @Param       X-Confirm  header  string  true  "Must be true"
// @Success     204  "No Content"
// @Failure     428  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /history [delete]
func (h *Handlers) ClearHistory(c *gin.Context) {
	if !strings.EqualFold(strings.TrimSpace(c.GetHeader("X-Confirm")), "true") {
		fail(c, http.StatusPreconditionRequired, ErrCodeConfirmRequired, "set X-Confirm: true to clear history")
		return
	}
	if err := h.verifier.ClearHistory(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeHistoryFailed, err.Error())
		return
	}
	noContent(c)
}
