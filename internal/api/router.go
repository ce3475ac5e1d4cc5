// Package api exposes the question answering service over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vetrag/internal/domain"
	"vetrag/internal/port"
	"vetrag/internal/usecase"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Service is the part of the orchestrator the HTTP layer needs.
type Service interface {
	Ask(ctx context.Context, query string, topK int) domain.AnswerResult
	Insert(ctx context.Context, chunks []domain.Chunk) (port.InsertResult, error)
	State() usecase.State
}

// Handler serves the HTTP API.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func NewHandler(svc Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// NewRouter builds the gin engine with request ids, access logging and
// panic recovery.
func NewRouter(svc Service, logger *slog.Logger) *gin.Engine {
	h := NewHandler(svc, logger)

	router := gin.New()
	router.Use(requestID(), accessLog(h.logger), gin.Recovery())

	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/ask", h.Ask)
		v1.POST("/chunks", h.InsertChunks)
	}
	return router
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"request_id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

type askRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k" binding:"gte=0"`
}

// Health reports the orchestrator lifecycle state.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"state":  h.svc.State().String(),
	})
}

// Ask answers a question. Retrieval failures still produce 200 with the
// fallback answer.
func (h *Handler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	result := h.svc.Ask(c.Request.Context(), req.Query, req.TopK)
	c.JSON(http.StatusOK, result)
}

type insertResponse struct {
	Written int                  `json:"written"`
	Skipped []port.SkippedRecord `json:"skipped"`
	Error   string               `json:"error,omitempty"`
}

// InsertChunks upserts a JSON array of chunk records.
func (h *Handler) InsertChunks(c *gin.Context) {
	var records []domain.ChunkRecord
	if err := c.ShouldBindJSON(&records); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no records"})
		return
	}

	res, err := h.svc.Insert(c.Request.Context(), domain.ToChunks(records))
	resp := insertResponse{Written: res.Written, Skipped: res.Skipped}
	if resp.Skipped == nil {
		resp.Skipped = []port.SkippedRecord{}
	}
	if err != nil {
		h.logger.Error("insert failed", "request_id", c.GetString("request_id"), "error", err)
		resp.Error = err.Error()
		c.JSON(statusFor(err), resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func statusFor(err error) int {
	var mismatch *domain.SchemaMismatchError
	switch {
	case errors.Is(err, domain.ErrInsertion):
		return http.StatusUnprocessableEntity
	case errors.As(err, &mismatch):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
