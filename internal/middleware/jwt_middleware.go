package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/marketplace_api/internal/utils"
)

// Context keys set by JWTMiddleware.
const (
	ContextUserID = "user_id"
	ContextEmail  = "email"
	ContextRole   = "role"
)

// JWTMiddleware authenticates bearer tokens issued at login.
type JWTMiddleware struct{}

// NewJWTMiddleware constructs a new JWTMiddleware.
func NewJWTMiddleware() *JWTMiddleware {
	return &JWTMiddleware{}
}

// Handle returns a Gin middleware function that enforces authentication.
// EventSource cannot send headers, so a token query parameter is accepted too.
func (m *JWTMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			utils.Error(c, 401, utils.CodeUnauthorized, "Missing or invalid authorization header")
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(token)
		if err != nil {
			utils.AppErrorResponse(c, utils.ErrInvalidToken)
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	return c.Query("token")
}

// GetUserID returns the authenticated user's ID.
func GetUserID(c *gin.Context) int64 {
	return c.GetInt64(ContextUserID)
}

// GetRole returns the authenticated user's role.
func GetRole(c *gin.Context) string {
	return c.GetString(ContextRole)
}
