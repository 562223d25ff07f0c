package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/GTDGit/marketplace_api/internal/middleware"
	"github.com/GTDGit/marketplace_api/internal/service"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

// SubscriptionHandler handles a client's subscriptions, balance and payment proofs.
type SubscriptionHandler struct {
	subscriptions *service.SubscriptionService
	payments      *service.PaymentService
}

// NewSubscriptionHandler constructs a SubscriptionHandler.
func NewSubscriptionHandler(subscriptions *service.SubscriptionService, payments *service.PaymentService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, payments: payments}
}

// GetBalance handles GET /v1/subscription/balance
func (h *SubscriptionHandler) GetBalance(c *gin.Context) {
	balance, err := h.subscriptions.GetBalance(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Balance retrieved", balance)
}

type subscribeBody struct {
	PackageID int64 `json:"packageId" binding:"required,min=1"`
}

// Subscribe handles POST /v1/subscription
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	var body subscribeBody
	if !bindJSON(c, &body) {
		return
	}
	if body.PackageID < 1 {
		utils.AppErrorResponse(c, utils.ErrInvalidRequest.WithMessage("packageId is required"))
		return
	}

	res, err := h.subscriptions.Subscribe(c.Request.Context(), middleware.GetUserID(c), body.PackageID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 201, res.Message, res)
}

// List handles GET /v1/subscription
func (h *SubscriptionHandler) List(c *gin.Context) {
	subs, err := h.subscriptions.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Subscriptions retrieved", subs)
}

// Cancel handles POST /v1/subscription/:id/cancel
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	sub, err := h.subscriptions.Cancel(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Subscription cancelled", sub)
}

// Ledger handles GET /v1/subscription/ledger
func (h *SubscriptionHandler) Ledger(c *gin.Context) {
	page, limit, offset := pagination(c)
	entries, total, err := h.subscriptions.Ledger(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessWithPagination(c, 200, "Credit history retrieved", entries, page, limit, total)
}

// SubmitProof handles POST /v1/subscription/:id/payment-proof (multipart, field "proof").
func (h *SubscriptionHandler) SubmitProof(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	header, err := c.FormFile("proof")
	if err != nil {
		utils.AppErrorResponse(c, utils.ErrInvalidRequest.WithMessage("A payment proof file is required in the \"proof\" field"))
		return
	}
	file, err := header.Open()
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	defer file.Close()

	payment, err := h.payments.SubmitProof(c.Request.Context(), middleware.GetUserID(c), id, service.ProofUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 201, "Payment proof received. An administrator will verify it shortly", payment)
}
