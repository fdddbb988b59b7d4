package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"legalrag/src/core/query"
	"legalrag/src/core/system"
)

// QueryService is the handler-facing surface of the query orchestrator.
type QueryService interface {
	Submit(ctx context.Context, question string) (*query.Query, error)
	Ask(ctx context.Context, question string) (*query.Query, error)
	Stream(ctx context.Context, question string) (*query.Query, <-chan string, error)
	Get(ctx context.Context, id string) (*query.Query, error)
}

// DocumentService fetches full source documents from object storage.
type DocumentService interface {
	GetObject(ctx context.Context, bucket, objectName string) ([]byte, error)
}

type SystemService interface {
	CheckHealth(ctx context.Context) *system.HealthStatus
}

type Handler struct {
	queryService   QueryService
	docService     DocumentService
	sysService     SystemService
	documentBucket string
}

func NewHandler(queryService QueryService, docService DocumentService, sysService SystemService, documentBucket string) *Handler {
	return &Handler{
		queryService:   queryService,
		docService:     docService,
		sysService:     sysService,
		documentBucket: documentBucket,
	}
}

// RegisterRoutes registers all v1 API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")

	// Query routes
	v1.POST("/queries", h.SubmitQuery)
	v1.GET("/queries/:id", h.GetQuery)

	// Chat routes
	v1.POST("/chat/stream", h.StreamChat)

	// Document routes
	v1.GET("/documents/:id", h.GetDocument)

	// System routes
	v1.GET("/health", h.CheckHealth)
}

// Common error response structure
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func sendError(c *gin.Context, status int, err error) {
	code := "INTERNAL_ERROR"
	switch {
	case errors.Is(err, query.ErrQueryNotFound):
		code = "NOT_FOUND"
		status = http.StatusNotFound
	case status == http.StatusBadRequest:
		code = "BAD_REQUEST"
	case status == http.StatusNotFound:
		code = "NOT_FOUND"
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
