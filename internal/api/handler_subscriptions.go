package api

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"equipment-service-backend/internal/apperr"
	"equipment-service-backend/internal/model"
)

type putSubscriptionRequest struct {
	Endpoint       string `json:"endpoint" binding:"required"`
	P256DH         string `json:"p256dh" binding:"required"`
	Auth           string `json:"auth" binding:"required"`
	TechnicianName string `json:"technician_name" binding:"required"`
}

// PutSubscription creates or replaces a technician's push subscription.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	name := strings.TrimSpace(req.TechnicianName)
	if !slices.Contains(h.engine.Roster(), name) {
		h.respondError(c, apperr.Validation("technician_name", "unknown technician "+name))
		return
	}

	sub := model.PushSubscription{
		Endpoint:       req.Endpoint,
		TechnicianName: name,
		P256DH:         req.P256DH,
		Auth:           req.Auth,
		CreatedAt:      h.engine.Now(),
	}
	if err := h.store.UpsertSubscription(c.Request.Context(), &sub); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.store.DeleteSubscription(c.Request.Context(), req.Endpoint); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
