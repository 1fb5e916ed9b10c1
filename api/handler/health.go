package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/appraise/models"
	"github.com/use-agent/appraise/runs"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Reports "busy" while a run waits for an operator.
func Health(m *runs.Manager, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		queued, active := m.Stats()

		status := "healthy"
		if active != "" {
			if run, err := m.Get(active); err == nil && run.Status(false).Status == models.RunAwaiting {
				status = "busy"
			}
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     status,
			Version:    Version,
			Uptime:     int64(time.Since(startTime).Seconds()),
			QueuedRuns: queued,
			ActiveRun:  active,
		})
	}
}
