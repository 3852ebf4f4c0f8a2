package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deliberation/dsm-engine/internal/concurrency"
	"github.com/deliberation/dsm-engine/internal/database"
)

// HealthChecker is the subset of database.DB the /health handler depends on.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
	Metrics() *database.PoolMetrics
}

// QueueDepth reports the transition-recheck queue's depth and worker
// activity, for the /health handler.
type QueueDepth interface {
	Depth() int
	WorkerMetrics() *concurrency.PoolMetrics
}

// HealthHandler implements GET /health.
type HealthHandler struct {
	db    HealthChecker
	queue QueueDepth
}

// NewHealthHandler builds a HealthHandler.
func NewHealthHandler(db HealthChecker, queue QueueDepth) *HealthHandler {
	return &HealthHandler{db: db, queue: queue}
}

// Check handles GET /health.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"db_metrics":    h.db.Metrics(),
		"queue_depth":   h.queue.Depth(),
		"queue_workers": h.queue.WorkerMetrics(),
	})
}
