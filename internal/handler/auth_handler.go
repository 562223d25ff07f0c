package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/GTDGit/marketplace_api/internal/middleware"
	"github.com/GTDGit/marketplace_api/internal/service"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Register handles POST /v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var in service.RegisterInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.authService.Register(c.Request.Context(), in)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 201, "Registration successful", res)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}

	res, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.Success(c, 200, "Login successful", res)
}

// Me handles GET /v1/me
func (h *AuthHandler) Me(c *gin.Context) {
	u, err := h.authService.Me(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Profile retrieved", u)
}

// SetServiceTypes handles PUT /v1/provider/service-types
func (h *AuthHandler) SetServiceTypes(c *gin.Context) {
	var body struct {
		ServiceTypeIDs []int64 `json:"serviceTypeIds" binding:"dive,min=1"`
	}
	if !bindJSON(c, &body) {
		return
	}
	ids, err := h.authService.SetProviderServiceTypes(c.Request.Context(), middleware.GetUserID(c), body.ServiceTypeIDs)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Service types updated", gin.H{"serviceTypeIds": ids})
}

// SetWebhook handles PUT /v1/provider/webhook. The secret is only returned here.
func (h *AuthHandler) SetWebhook(c *gin.Context) {
	var body struct {
		URL string `json:"url" binding:"omitempty,url"`
	}
	if !bindJSON(c, &body) {
		return
	}
	settings, err := h.authService.SetWebhook(c.Request.Context(), middleware.GetUserID(c), body.URL)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Webhook updated", settings)
}
