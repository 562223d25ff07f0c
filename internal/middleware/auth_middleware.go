package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

// RequireRole lets only the given roles through. It must run after
// JWTMiddleware.
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[string(r)] = true
	}
	return func(c *gin.Context) {
		if !allowed[GetRole(c)] {
			utils.AppErrorResponse(c, utils.ErrRoleNotAllowed)
			c.Abort()
			return
		}
		c.Next()
	}
}
