package middleware

import (
	"net/http"
	"strings"

	"huddle/internal/core/services"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware requires a valid join token in the Authorization header and
// stores the signed identity in the request context.
func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateJoinToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set("session", claims.Session)
		c.Set("participant", claims.Participant)
		c.Set("host", claims.Host)
		c.Next()
	}
}

// HostOnlyMiddleware rejects requests whose token does not carry the host
// flag. Must run after AuthMiddleware.
func HostOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		host, exists := c.Get("host")
		if !exists || host != true {
			c.JSON(http.StatusForbidden, gin.H{"error": "host privileges required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
