package gateway

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Auth returns a middleware enforcing bearer-token authentication on every
// route, websocket upgrades included. A missing or malformed header is 401;
// a present-but-wrong token is 403.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token != secret {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}
