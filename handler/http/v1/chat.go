package v1

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type streamChatRequest struct {
	QueryText string `json:"queryText" binding:"required"`
}

// StreamChat godoc
// @Summary Stream an answer incrementally
// @Tags chat
// @Accept json
// @Produce plain
// @Param body body streamChatRequest true "Question"
// @Success 200 {string} string "chunked answer text"
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /chat/stream [post]
func (h *Handler) StreamChat(c *gin.Context) {
	var req streamChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	q, frags, err := h.queryService.Stream(c.Request.Context(), req.QueryText)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("X-Query-Id", q.ID)
	c.Status(http.StatusOK)

	c.Stream(func(w io.Writer) bool {
		fragment, ok := <-frags
		if !ok {
			return false
		}
		if _, err := w.Write([]byte(fragment)); err != nil {
			return false
		}
		return true
	})
}
