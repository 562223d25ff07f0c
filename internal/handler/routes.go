package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/GTDGit/marketplace_api/internal/middleware"
	"github.com/GTDGit/marketplace_api/internal/models"
)

// Handlers groups every HTTP handler the API exposes.
type Handlers struct {
	Auth         *AuthHandler
	Catalog      *CatalogHandler
	Request      *RequestHandler
	Subscription *SubscriptionHandler
	Payment      *PaymentHandler
	SSE          *SSEHandler
	Health       *HealthHandler
}

// SetupRoutes registers all routes on router. loginLimiter may be nil.
func SetupRoutes(router *gin.Engine, h *Handlers, jwt *middleware.JWTMiddleware, loginLimiter *middleware.IPRateLimiter) {
	router.GET("/v1/health", h.Health.GetHealth)

	auth := router.Group("/v1/auth")
	if loginLimiter != nil {
		auth.Use(loginLimiter.Handle())
	}
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
	}

	// Public catalog
	router.GET("/v1/service-types", h.Catalog.ListServiceTypes)
	router.GET("/v1/service-types/:id", h.Catalog.GetServiceType)
	router.POST("/v1/service-types/:id/quote", h.Catalog.Quote)
	router.GET("/v1/packages", h.Catalog.ListPackages)
	router.GET("/v1/packages/:id", h.Catalog.GetPackage)

	v1 := router.Group("/v1", jwt.Handle())
	v1.GET("/me", h.Auth.Me)
	v1.GET("/events", h.SSE.Stream)

	client := middleware.RequireRole(models.RoleClient)
	provider := middleware.RequireRole(models.RoleProvider)
	participant := middleware.RequireRole(models.RoleClient, models.RoleProvider)

	requests := v1.Group("/requests")
	{
		requests.POST("", client, h.Request.Create)
		requests.GET("", participant, h.Request.List)
		requests.GET("/open", provider, h.Request.ListOpen)
		requests.GET("/:id", h.Request.Get)
		requests.POST("/:id/revision", client, h.Request.RequestRevision)
		requests.POST("/:id/complete", client, h.Request.Complete)
		requests.POST("/:id/cancel", client, h.Request.Cancel)
		requests.POST("/:id/rate", client, h.Request.Rate)
		requests.POST("/:id/claim", provider, h.Request.Claim)
		requests.POST("/:id/start-revision", provider, h.Request.StartRevision)
		requests.POST("/:id/deliver", provider, h.Request.Deliver)
		requests.GET("/:id/comments", h.Request.ListComments)
		requests.POST("/:id/comments", h.Request.AddComment)
	}

	subscription := v1.Group("/subscription", client)
	{
		subscription.GET("", h.Subscription.List)
		subscription.POST("", h.Subscription.Subscribe)
		subscription.GET("/balance", h.Subscription.GetBalance)
		subscription.GET("/ledger", h.Subscription.Ledger)
		subscription.POST("/:id/cancel", h.Subscription.Cancel)
		subscription.POST("/:id/payment-proof", h.Subscription.SubmitProof)
	}

	providerGroup := v1.Group("/provider", provider)
	{
		providerGroup.PUT("/service-types", h.Auth.SetServiceTypes)
		providerGroup.PUT("/webhook", h.Auth.SetWebhook)
	}

	admin := v1.Group("/admin", middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/service-types", h.Catalog.ListServiceTypes)
		admin.POST("/service-types", h.Catalog.CreateServiceType)
		admin.PUT("/service-types/:id", h.Catalog.UpdateServiceType)
		admin.DELETE("/service-types/:id", h.Catalog.DeleteServiceType)

		admin.GET("/packages", h.Catalog.ListPackages)
		admin.POST("/packages", h.Catalog.CreatePackage)
		admin.PUT("/packages/:id", h.Catalog.UpdatePackage)
		admin.DELETE("/packages/:id", h.Catalog.DeletePackage)

		admin.GET("/payments", h.Payment.List)
		admin.GET("/payments/:id/proof", h.Payment.ProofURL)
		admin.POST("/payments/:id/approve", h.Payment.Approve)
		admin.POST("/payments/:id/reject", h.Payment.Reject)

		admin.GET("/requests/:id/revision-audit", h.Request.AuditRevisions)
	}
}
