package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/GTDGit/marketplace_api/internal/middleware"
	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/service"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

// RequestHandler handles service request endpoints for clients and providers.
type RequestHandler struct {
	requests *service.RequestService
}

// NewRequestHandler constructs a RequestHandler.
func NewRequestHandler(requests *service.RequestService) *RequestHandler {
	return &RequestHandler{requests: requests}
}

// Create handles POST /v1/requests
func (h *RequestHandler) Create(c *gin.Context) {
	var in service.CreateRequestInput
	if !bindJSON(c, &in) {
		return
	}
	in.IdempotencyKey = c.GetHeader("Idempotency-Key")

	res, err := h.requests.Create(c.Request.Context(), middleware.GetUserID(c), in)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	code := 201
	if res.Replayed {
		code = 200
	}
	utils.Success(c, code, res.Message, res)
}

type revisionBody struct {
	Feedback string `json:"feedback"`
}

// RequestRevision handles POST /v1/requests/:id/revision
func (h *RequestHandler) RequestRevision(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body revisionBody
	if c.Request.ContentLength > 0 && !bindJSON(c, &body) {
		return
	}

	res, err := h.requests.RequestRevision(c.Request.Context(), id, middleware.GetUserID(c), body.Feedback)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, res.Message, res)
}

// List handles GET /v1/requests. Clients see their own requests, providers
// the requests assigned to them.
func (h *RequestHandler) List(c *gin.Context) {
	page, limit, offset := pagination(c)
	a := actor(c)

	var (
		items []*models.Request
		total int
		err   error
	)
	if a.Role == models.RoleProvider {
		items, total, err = h.requests.ListForProvider(c.Request.Context(), a.UserID, limit, offset)
	} else {
		items, total, err = h.requests.ListForClient(c.Request.Context(), a.UserID, limit, offset)
	}
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessWithPagination(c, 200, "Requests retrieved", items, page, limit, total)
}

// ListOpen handles GET /v1/requests/open
func (h *RequestHandler) ListOpen(c *gin.Context) {
	page, limit, offset := pagination(c)
	items, total, err := h.requests.ListOpenForProvider(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessWithPagination(c, 200, "Open requests retrieved", items, page, limit, total)
}

// Get handles GET /v1/requests/:id
func (h *RequestHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	req, err := h.requests.Get(c.Request.Context(), actor(c), id)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Request retrieved", req)
}

// Claim handles POST /v1/requests/:id/claim
func (h *RequestHandler) Claim(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	req, err := h.requests.Claim(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Request claimed", req)
}

// StartRevision handles POST /v1/requests/:id/start-revision
func (h *RequestHandler) StartRevision(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	req, err := h.requests.StartRevision(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Revision started", req)
}

// Deliver handles POST /v1/requests/:id/deliver
func (h *RequestHandler) Deliver(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in service.DeliverInput
	if !bindJSON(c, &in) {
		return
	}
	req, err := h.requests.Deliver(c.Request.Context(), id, middleware.GetUserID(c), in)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Work delivered", req)
}

// Complete handles POST /v1/requests/:id/complete
func (h *RequestHandler) Complete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	req, err := h.requests.Complete(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Request completed", req)
}

// Cancel handles POST /v1/requests/:id/cancel
func (h *RequestHandler) Cancel(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	res, err := h.requests.Cancel(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Request cancelled", res)
}

type rateBody struct {
	Rating int `json:"rating" binding:"required,min=1,max=5"`
}

// Rate handles POST /v1/requests/:id/rate
func (h *RequestHandler) Rate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body rateBody
	if !bindJSON(c, &body) {
		return
	}
	req, err := h.requests.Rate(c.Request.Context(), id, middleware.GetUserID(c), body.Rating)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Thanks for your rating", req)
}

// ListComments handles GET /v1/requests/:id/comments
func (h *RequestHandler) ListComments(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	comments, err := h.requests.ListComments(c.Request.Context(), actor(c), id)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Comments retrieved", comments)
}

// AddComment handles POST /v1/requests/:id/comments
func (h *RequestHandler) AddComment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in service.CommentInput
	if !bindJSON(c, &in) {
		return
	}
	comment, err := h.requests.AddComment(c.Request.Context(), actor(c), id, in)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 201, "Comment added", comment)
}

// AuditRevisions handles GET /v1/admin/requests/:id/revision-audit
func (h *RequestHandler) AuditRevisions(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	audit, err := h.requests.AuditRevisions(c.Request.Context(), id)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Revision audit", audit)
}
