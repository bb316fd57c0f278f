package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Prober checks connectivity of one named backend.
type Prober interface {
	Probe(ctx context.Context, source string) error
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "go-lakehouse-gateway",
	})
}

// Ready probes each configured backend and reports per-source health.
func Ready(prober Prober, sources []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}
		ready := true

		for _, source := range sources {
			if err := prober.Probe(c.Request.Context(), source); err != nil {
				checks[source] = "unhealthy"
				ready = false
			} else {
				checks[source] = "healthy"
			}
		}

		status := gin.H{"status": "ready", "checks": checks}
		if !ready {
			status["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}
