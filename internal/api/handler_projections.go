package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"equipment-service-backend/internal/apperr"
)

// Workload handles GET /api/projections/workload.
func (h *Handler) Workload(c *gin.Context) {
	loads, err := h.projector.Workload(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loads)
}

// Unassigned handles GET /api/projections/unassigned.
func (h *Handler) Unassigned(c *gin.Context) {
	u, err := h.projector.Unassigned(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// Calendar handles GET /api/projections/calendar?from=&to=. The window defaults to
// the current month; to is exclusive.
func (h *Handler) Calendar(c *gin.Context) {
	now := h.engine.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = parseDate("from", raw); err != nil {
			h.respondError(c, err)
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = parseDate("to", raw); err != nil {
			h.respondError(c, err)
			return
		}
	}
	if !to.After(from) {
		h.respondError(c, apperr.Validation("to", "to must be after from"))
		return
	}

	cal, err := h.projector.Calendar(c.Request.Context(), from, to)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cal)
}

// Notifications handles GET /api/projections/notifications.
func (h *Handler) Notifications(c *gin.Context) {
	feed, err := h.projector.NotificationFeed(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(c *gin.Context) {
	counts, err := h.engine.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}
