package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type submitQueryRequest struct {
	QueryText string `json:"queryText" binding:"required"`
	// Sync makes the call wait for the answer instead of returning a
	// pollable query id. Meant for development and tests.
	Sync bool `json:"sync"`
}

// SubmitQuery godoc
// @Summary Submit a legal question
// @Tags queries
// @Accept json
// @Produce json
// @Param body body submitQueryRequest true "Question"
// @Success 200 {object} query.Query
// @Success 202 {object} query.Query
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /queries [post]
func (h *Handler) SubmitQuery(c *gin.Context) {
	var req submitQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	if req.Sync {
		q, err := h.queryService.Ask(c.Request.Context(), req.QueryText)
		if err != nil {
			sendError(c, http.StatusInternalServerError, err)
			return
		}
		sendJSON(c, http.StatusOK, q)
		return
	}

	q, err := h.queryService.Submit(c.Request.Context(), req.QueryText)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	status := http.StatusAccepted
	if q.Status.Terminal() {
		status = http.StatusOK
	}
	sendJSON(c, status, q)
}

// GetQuery godoc
// @Summary Get query status and answer
// @Tags queries
// @Produce json
// @Param id path string true "Query ID"
// @Success 200 {object} query.Query
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /queries/{id} [get]
func (h *Handler) GetQuery(c *gin.Context) {
	q, err := h.queryService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, q)
}
