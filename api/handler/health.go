package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/storelens/storelens/models"
	"github.com/storelens/storelens/worker"
)

// Health returns a handler for GET /api/v1/health.
func Health(queue worker.Queue, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		depth := 0
		status := "healthy"
		if n, err := queue.Len(c.Request.Context()); err != nil {
			status = "degraded"
		} else {
			depth = n
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     status,
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			QueueDepth: depth,
			Version:    "0.1.0",
		})
	}
}
