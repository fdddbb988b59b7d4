package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"legalrag/src/storage/minioctrl"
)

// GetDocument godoc
// @Summary Fetch a full source document from the corpus bucket
// @Tags documents
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Success 200 {string} binary
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /documents/{id} [get]
func (h *Handler) GetDocument(c *gin.Context) {
	data, err := h.docService.GetObject(c.Request.Context(), h.documentBucket, c.Param("id"))
	if err != nil {
		if errors.Is(err, minioctrl.ErrObjectNotFound) {
			sendError(c, http.StatusNotFound, err)
			return
		}
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	c.Data(http.StatusOK, "application/octet-stream", data)
}
