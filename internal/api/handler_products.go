package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"equipment-service-backend/internal/apperr"
	"equipment-service-backend/internal/engine"
	"equipment-service-backend/internal/model"
	"equipment-service-backend/internal/parse"
)

type registerProductRequest struct {
	SerialNumber     string          `json:"serial_number"`
	ModelName        string          `json:"model_name"`
	ModelType        model.ModelType `json:"model_type"`
	City             string          `json:"city"`
	LocationDetail   string          `json:"location_detail"`
	RegistrationDate string          `json:"registration_date"`
}

type productResponse struct {
	Product *model.Product          `json:"product"`
	Tasks   []model.MaintenanceTask `json:"maintenance_tasks"`
}

// parseDate accepts YYYY-MM-DD or RFC3339. Empty input yields the zero time.
func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := parse.ParseDay(s); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, apperr.Validation(field, field+" must be YYYY-MM-DD or RFC3339")
	}
	return t.UTC(), nil
}

// RegisterProduct handles POST /api/products.
func (h *Handler) RegisterProduct(c *gin.Context) {
	var req registerProductRequest
	if !h.bindJSON(c, &req) {
		return
	}
	reg, err := parseDate("registration_date", req.RegistrationDate)
	if err != nil {
		h.respondError(c, err)
		return
	}

	p, tasks, err := h.engine.RegisterProduct(c.Request.Context(), engine.NewProduct{
		SerialNumber:     req.SerialNumber,
		ModelName:        req.ModelName,
		ModelType:        req.ModelType,
		City:             req.City,
		LocationDetail:   req.LocationDetail,
		RegistrationDate: reg,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, productResponse{Product: p, Tasks: tasks})
}

// ListProducts handles GET /api/products.
func (h *Handler) ListProducts(c *gin.Context) {
	products, err := h.engine.ListProducts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// GetProduct handles GET /api/products/:id.
func (h *Handler) GetProduct(c *gin.Context) {
	p, err := h.engine.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type registrationDateRequest struct {
	RegistrationDate string `json:"registration_date" binding:"required"`
}

// UpdateRegistrationDate handles PUT /api/products/:id/registration-date.
func (h *Handler) UpdateRegistrationDate(c *gin.Context) {
	var req registrationDateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	reg, err := parseDate("registration_date", req.RegistrationDate)
	if err != nil {
		h.respondError(c, err)
		return
	}

	p, tasks, err := h.engine.UpdateRegistrationDate(c.Request.Context(), c.Param("id"), reg)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, productResponse{Product: p, Tasks: tasks})
}

// ServiceRecords handles GET /api/products/:id/service-records.
func (h *Handler) ServiceRecords(c *gin.Context) {
	records, err := h.engine.ServiceRecords(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}
