package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricehound/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when more than 80% of the pool target is checked out.
func Health(stats func() models.PoolStats, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := stats()

		status := "healthy"
		if st.Target > 0 && st.InUse > int(float64(st.Target)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			PoolStats: st,
			Version:   Version,
		})
	}
}
