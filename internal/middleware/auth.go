package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"meetsense-backend/pkg/jwt"
	"meetsense-backend/pkg/response"
)

// ServiceAuth creates a Gin middleware that validates service-to-service JWT tokens.
// If valid, it sets the calling service name in the Gin context.
func ServiceAuth(jwtManager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(parts[1])
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		if !claims.HasAudience(jwt.Audience) {
			response.Unauthorized(c, "Invalid token audience")
			c.Abort()
			return
		}

		c.Set("service", claims.Service)
		c.Next()
	}
}
