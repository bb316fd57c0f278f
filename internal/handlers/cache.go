package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-lakehouse-gateway/internal/cache"
)

// CacheStats reports per-cache hit/miss counters from the registry.
func CacheStats(registry *cache.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, registry.Stats(c.Request.Context()))
	}
}

// CacheClear empties every registered cache.
func CacheClear(registry *cache.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := registry.ClearAll(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cleared"})
	}
}
