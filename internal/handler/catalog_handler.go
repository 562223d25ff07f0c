package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/GTDGit/marketplace_api/internal/service"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

// CatalogHandler serves service types and packages. Reads are public, writes
// are admin-only; admins also see inactive and deleted entries.
type CatalogHandler struct {
	catalog *service.CatalogService
}

// NewCatalogHandler constructs a CatalogHandler.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListServiceTypes handles GET /v1/service-types and GET /v1/admin/service-types
func (h *CatalogHandler) ListServiceTypes(c *gin.Context) {
	items, err := h.catalog.ListServiceTypes(c.Request.Context(), isAdmin(c))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Service types retrieved", items)
}

// GetServiceType handles GET /v1/service-types/:id
func (h *CatalogHandler) GetServiceType(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	st, err := h.catalog.GetServiceType(c.Request.Context(), id)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Service type retrieved", st)
}

// Quote handles POST /v1/service-types/:id/quote
func (h *CatalogHandler) Quote(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in service.QuoteInput
	if !bindJSON(c, &in) {
		return
	}
	quote, err := h.catalog.Quote(c.Request.Context(), id, in)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Cost calculated", quote)
}

// CreateServiceType handles POST /v1/admin/service-types
func (h *CatalogHandler) CreateServiceType(c *gin.Context) {
	var in service.ServiceTypeInput
	if !bindJSON(c, &in) {
		return
	}
	st, err := h.catalog.CreateServiceType(c.Request.Context(), in)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 201, "Service type created", st)
}

// UpdateServiceType handles PUT /v1/admin/service-types/:id
func (h *CatalogHandler) UpdateServiceType(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in service.ServiceTypeInput
	if !bindJSON(c, &in) {
		return
	}
	st, err := h.catalog.UpdateServiceType(c.Request.Context(), id, in)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Service type updated", st)
}

// DeleteServiceType handles DELETE /v1/admin/service-types/:id
func (h *CatalogHandler) DeleteServiceType(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteServiceType(c.Request.Context(), id); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Service type deleted", nil)
}

// ListPackages handles GET /v1/packages and GET /v1/admin/packages
func (h *CatalogHandler) ListPackages(c *gin.Context) {
	items, err := h.catalog.ListPackages(c.Request.Context(), isAdmin(c))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Packages retrieved", items)
}

// GetPackage handles GET /v1/packages/:id
func (h *CatalogHandler) GetPackage(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := h.catalog.GetPackage(c.Request.Context(), id)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Package retrieved", p)
}

// CreatePackage handles POST /v1/admin/packages
func (h *CatalogHandler) CreatePackage(c *gin.Context) {
	var in service.PackageInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.catalog.CreatePackage(c.Request.Context(), in)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 201, "Package created", p)
}

// UpdatePackage handles PUT /v1/admin/packages/:id
func (h *CatalogHandler) UpdatePackage(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in service.PackageInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.catalog.UpdatePackage(c.Request.Context(), id, in)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Package updated", p)
}

// DeletePackage handles DELETE /v1/admin/packages/:id
func (h *CatalogHandler) DeletePackage(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeletePackage(c.Request.Context(), id); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.Success(c, 200, "Package deleted", nil)
}
