package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"equipment-service-backend/internal/engine"
	"equipment-service-backend/internal/lifecycle"
	"equipment-service-backend/internal/model"
	"equipment-service-backend/internal/store"
)

// ReportIssue handles POST /api/issues.
func (h *Handler) ReportIssue(c *gin.Context) {
	var req engine.NewIssue
	if !h.bindJSON(c, &req) {
		return
	}
	issue, err := h.engine.ReportIssue(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, issue)
}

// ListIssues handles GET /api/issues. status takes a comma separated list.
func (h *Handler) ListIssues(c *gin.Context) {
	f := store.IssueFilter{
		ProductID: c.Query("product_id"),
		Source:    model.IssueSource(c.Query("source")),
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			f.Statuses = append(f.Statuses, model.IssueStatus(strings.TrimSpace(s)))
		}
	}

	issues, err := h.engine.ListIssues(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issues)
}

// GetIssue handles GET /api/issues/:id.
func (h *Handler) GetIssue(c *gin.Context) {
	issue, err := h.engine.GetIssue(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

// TrackIssue handles GET /api/issues/:id/track.
func (h *Handler) TrackIssue(c *gin.Context) {
	t, err := h.engine.Track(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// GetDeadline handles GET /api/issues/:id/deadline. An issue without a running
// deadline answers {"deadline": null}.
func (h *Handler) GetDeadline(c *gin.Context) {
	d, err := h.engine.GetDeadline(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deadline": d})
}

type assignRequest struct {
	TechnicianName string `json:"technician_name"`
}

// AssignTechnician handles POST /api/issues/:id/assign.
func (h *Handler) AssignTechnician(c *gin.Context) {
	var req assignRequest
	if !h.bindJSON(c, &req) {
		return
	}
	issue, err := h.engine.AssignTechnician(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.TechnicianName))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

type transitionRequest struct {
	Event   string         `json:"event" binding:"required"`
	Payload engine.Payload `json:"payload"`
}

// Transition handles POST /api/issues/:id/transitions.
func (h *Handler) Transition(c *gin.Context) {
	var req transitionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	ev, err := lifecycle.ParseEvent(req.Event)
	if err != nil {
		h.respondError(c, err)
		return
	}
	issue, err := h.engine.Transition(c.Request.Context(), c.Param("id"), ev, req.Payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}
