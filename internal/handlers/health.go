package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/ideahub/backend/internal/services"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the store, the task queue and the
// live hub.
type HealthHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
	hub   *services.LiveHub
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue, hub *services.LiveHub) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, hub: hub}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := 200

	// Database check
	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}
	if overall != "healthy" {
		status = 503
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "ideahub",
		"components": gin.H{
			"database":         dbStatus,
			"queue_mode":       queueMode,
			"live_connections": h.hub.ConnectionCount(),
			"live_ideas":       h.hub.IdeaCount(),
		},
	})
}
