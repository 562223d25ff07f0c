package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/marketplace_api/internal/middleware"
	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/service"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// paramID parses a positive integer path parameter, writing a 400 and
// returning false when it is missing or malformed.
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		utils.Error(c, 400, "INVALID_ID", "Invalid "+name)
		return 0, false
	}
	return id, true
}

// pagination reads page and limit query parameters.
func pagination(c *gin.Context) (page, limit, offset int) {
	page, _ = strconv.Atoi(c.Query("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.Query("limit"))
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit, (page - 1) * limit
}

// bindJSON decodes the body, writing a 400 on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		utils.AppErrorResponse(c, utils.ErrInvalidRequest.WithDetails([]string{err.Error()}))
		return false
	}
	return true
}

func actor(c *gin.Context) service.Actor {
	return service.Actor{
		UserID: middleware.GetUserID(c),
		Role:   models.UserRole(middleware.GetRole(c)),
	}
}

func isAdmin(c *gin.Context) bool {
	return middleware.GetRole(c) == string(models.RoleAdmin)
}
