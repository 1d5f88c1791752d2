package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListTechnicians handles GET /api/technicians.
func (h *Handler) ListTechnicians(c *gin.Context) {
	days, err := h.engine.Unavailability(c.Request.Context(), "")
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"technicians": h.engine.Roster(),
		"unavailable": days,
	})
}

type unavailableRequest struct {
	Reason string `json:"reason"`
}

// MarkUnavailable handles POST /api/technicians/:name/unavailable/:date. The body
// is optional.
func (h *Handler) MarkUnavailable(c *gin.Context) {
	var req unavailableRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	u, err := h.engine.MarkUnavailable(c.Request.Context(), c.Param("name"), c.Param("date"), req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

// MarkAvailable handles DELETE /api/technicians/:name/unavailable/:date.
func (h *Handler) MarkAvailable(c *gin.Context) {
	if err := h.engine.MarkAvailable(c.Request.Context(), c.Param("name"), c.Param("date")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
