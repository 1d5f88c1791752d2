package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"equipment-service-backend/internal/apperr"
	"equipment-service-backend/internal/engine"
	"equipment-service-backend/internal/model"
)

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation(key, key+" must be an integer")
	}
	return n, nil
}

// ListTasks handles GET /api/tasks.
func (h *Handler) ListTasks(c *gin.Context) {
	month, err := queryInt(c, "month")
	if err != nil {
		h.respondError(c, err)
		return
	}
	year, err := queryInt(c, "year")
	if err != nil {
		h.respondError(c, err)
		return
	}

	tasks, err := h.engine.ListTasks(c.Request.Context(), engine.TaskQuery{
		ProductID: c.Query("product_id"),
		Status:    model.TaskStatus(c.Query("status")),
		Month:     month,
		Year:      year,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// UpcomingTasks handles GET /api/tasks/upcoming.
func (h *Handler) UpcomingTasks(c *gin.Context) {
	tasks, err := h.engine.UpcomingTasks(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// OverdueTasks handles GET /api/tasks/overdue.
func (h *Handler) OverdueTasks(c *gin.Context) {
	tasks, err := h.engine.OverdueTasks(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// TaskCounts handles GET /api/tasks/counts.
func (h *Handler) TaskCounts(c *gin.Context) {
	counts, err := h.engine.CountTasks(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// GetTask handles GET /api/tasks/:id.
func (h *Handler) GetTask(c *gin.Context) {
	task, err := h.engine.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type scheduleRequest struct {
	ScheduledDate string `json:"scheduled_date" binding:"required"`
}

// ScheduleTask handles POST /api/tasks/:id/schedule.
func (h *Handler) ScheduleTask(c *gin.Context) {
	var req scheduleRequest
	if !h.bindJSON(c, &req) {
		return
	}
	date, err := parseDate("scheduled_date", req.ScheduledDate)
	if err != nil {
		h.respondError(c, err)
		return
	}
	task, err := h.engine.ScheduleTask(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type taskStatusRequest struct {
	Status model.TaskStatus `json:"status" binding:"required"`
}

// UpdateTaskStatus handles PUT /api/tasks/:id/status.
func (h *Handler) UpdateTaskStatus(c *gin.Context) {
	var req taskStatusRequest
	if !h.bindJSON(c, &req) {
		return
	}
	task, err := h.engine.UpdateTaskStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}
