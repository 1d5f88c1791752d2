package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"equipment-service-backend/internal/apperr"
	"equipment-service-backend/internal/engine"
	"equipment-service-backend/internal/projection"
	"equipment-service-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine    *engine.Engine
	projector *projection.Projector
	store     store.Store
	webpush   *webpush.Options
	log       *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(e *engine.Engine, p *projection.Projector, s store.Store, webpushOptions *webpush.Options, log *zap.Logger) *Handler {
	return &Handler{
		engine:    e,
		projector: p,
		store:     s,
		webpush:   webpushOptions,
		log:       log,
	}
}

// respondError writes err as {"error": {...}}. Business rejections keep their kind
// and details; anything else is logged and reported as an internal error.
func (h *Handler) respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		c.AbortWithStatusJSON(appErr.HTTPStatus(), gin.H{"error": appErr})
		return
	}
	h.log.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString("request_id")),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": gin.H{
		"code":    "INTERNAL_ERROR",
		"message": "internal server error",
	}})
}

// bindJSON decodes the body into dst, answering 400 on failure.
func (h *Handler) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.respondError(c, apperr.Validation("body", "invalid request: "+err.Error()))
		return false
	}
	return true
}
