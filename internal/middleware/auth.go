package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyAuth rejects requests that carry none of the configured keys in
// X-API-Key or as a bearer token.
func APIKeyAuth(validKeys []string) gin.HandlerFunc {
	keys := make(map[string]struct{}, len(validKeys))
	for _, key := range validKeys {
		if key != "" {
			keys[key] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			if bearer, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
				apiKey = bearer
			}
		}

		if _, ok := keys[apiKey]; !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or missing API key",
			})
			c.Abort()
			return
		}

		// Kept for request logging.
		c.Set("api_key", apiKey)
		c.Next()
	}
}
