package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	userIDHeader  = "X-User-Id"
	userIDMaxLen  = 64
	userIDCtxKey  = "user_id"
)

// UserResolver extracts the caller identity from the X-User-Id header set by
// the upstream gateway. Authentication itself happens before this service.
func UserResolver() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(userIDHeader))
		if userID == "" || len(userID) > userIDMaxLen {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing or invalid user identity",
			})
			return
		}
		c.Set(userIDCtxKey, userID)
		c.Next()
	}
}

// UserIDFromContext returns the resolved user ID for the request.
func UserIDFromContext(c *gin.Context) string {
	return c.GetString(userIDCtxKey)
}
