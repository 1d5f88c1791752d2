package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"equipment-service-backend/config"
	"equipment-service-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestID(), mw.Logger(log))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// read-only views tolerate a few seconds of staleness
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	caching := mw.Cache(cache.New(ttl, 2*ttl), ttl)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/products", h.RegisterProduct)
		api.GET("/products", h.ListProducts)
		api.GET("/products/:id", h.GetProduct)
		api.PUT("/products/:id/registration-date", h.UpdateRegistrationDate)
		api.GET("/products/:id/service-records", h.ServiceRecords)

		api.POST("/issues", h.ReportIssue)
		api.GET("/issues", h.ListIssues)
		api.GET("/issues/:id", h.GetIssue)
		api.GET("/issues/:id/track", h.TrackIssue)
		api.GET("/issues/:id/deadline", h.GetDeadline)
		api.POST("/issues/:id/assign", h.AssignTechnician)
		api.POST("/issues/:id/transitions", h.Transition)

		api.GET("/tasks", h.ListTasks)
		api.GET("/tasks/upcoming", h.UpcomingTasks)
		api.GET("/tasks/overdue", h.OverdueTasks)
		api.GET("/tasks/counts", h.TaskCounts)
		api.GET("/tasks/:id", h.GetTask)
		api.POST("/tasks/:id/schedule", h.ScheduleTask)
		api.PUT("/tasks/:id/status", h.UpdateTaskStatus)

		projections := api.Group("/projections", caching)
		projections.GET("/workload", h.Workload)
		projections.GET("/unassigned", h.Unassigned)
		projections.GET("/calendar", h.Calendar)
		projections.GET("/notifications", h.Notifications)

		api.GET("/technicians", h.ListTechnicians)
		api.POST("/technicians/:name/unavailable/:date", h.MarkUnavailable)
		api.DELETE("/technicians/:name/unavailable/:date", h.MarkAvailable)

		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
		api.GET("/stats", caching, h.Stats)
	}

	return r
}
