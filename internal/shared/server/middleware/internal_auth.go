package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"surgeval-backend/internal/shared/server/respond"
)

// InternalAuth guards internal trigger endpoints with a shared bearer secret.
// Requests are rejected outright when no secret is configured.
func InternalAuth(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	return func(c *gin.Context) {
		if secret == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "internal endpoints are not configured", nil)
			return
		}
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(secret)) != 1 {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "invalid or missing bearer token", nil)
			return
		}
		c.Next()
	}
}
