package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/GTDGit/marketplace_api/internal/middleware"
	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/service"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

// PaymentHandler handles admin payment verification.
type PaymentHandler struct {
	payments *service.PaymentService
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// List handles GET /v1/admin/payments?status=pending
func (h *PaymentHandler) List(c *gin.Context) {
	page, limit, offset := pagination(c)
	status := models.PaymentStatus(c.DefaultQuery("status", string(models.PaymentPending)))
	switch status {
	case models.PaymentPending, models.PaymentApproved, models.PaymentRejected, models.PaymentCancelled:
	default:
		utils.AppErrorResponse(c, utils.ErrInvalidRequest.WithMessage("status must be pending, approved or rejected"))
		return
	}

	items, total, err := h.payments.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessWithPagination(c, 200, "Payments retrieved", items, page, limit, total)
}

// Approve handles POST /v1/admin/payments/:id/approve
func (h *PaymentHandler) Approve(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	res, err := h.payments.Approve(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, res.Message, res)
}

type rejectBody struct {
	Reason string `json:"reason" binding:"required"`
}

// Reject handles POST /v1/admin/payments/:id/reject
func (h *PaymentHandler) Reject(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body rejectBody
	if !bindJSON(c, &body) {
		return
	}
	payment, err := h.payments.Reject(c.Request.Context(), id, middleware.GetUserID(c), body.Reason)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Payment rejected", payment)
}

// ProofURL handles GET /v1/admin/payments/:id/proof
func (h *PaymentHandler) ProofURL(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	url, err := h.payments.ProofURL(c.Request.Context(), id)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Proof link generated", gin.H{"url": url})
}
