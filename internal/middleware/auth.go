package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/taskhub/backend/internal/utils"
	"github.com/taskhub/backend/pkg/response"
)

const (
	ContextUserID = "user_id"
	ContextEmail  = "email"
	ContextName   = "name"
)

// TokenValidator rejects tokens that verify but are no longer honored, such
// as tokens issued before the user logged out.
type TokenValidator interface {
	ValidateToken(ctx context.Context, claims *utils.Claims) error
}

// AuthRequired is a middleware that checks for a valid JWT token. A nil
// validator accepts every token that verifies.
func AuthRequired(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "authorization header required")
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			response.Unauthorized(c, "invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(parts[1])
		if err != nil || claims.UserID == 0 {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		if validator != nil {
			if err := validator.ValidateToken(c.Request.Context(), claims); err != nil {
				response.Error(c, err)
				c.Abort()
				return
			}
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextName, claims.Name)

		c.Next()
	}
}

// GetUserID gets the current user ID from context
func GetUserID(c *gin.Context) uint {
	if id, exists := c.Get(ContextUserID); exists {
		return id.(uint)
	}
	return 0
}

// GetEmail gets the current user email from context
func GetEmail(c *gin.Context) string {
	return c.GetString(ContextEmail)
}

// GetName gets the current user display name from context
func GetName(c *gin.Context) string {
	return c.GetString(ContextName)
}
