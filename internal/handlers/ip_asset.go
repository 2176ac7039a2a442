// internal/handlers/ip_asset.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

type IPAssetHandler struct {
	ipService *services.IPService
}

func NewIPAssetHandler(ipService *services.IPService) *IPAssetHandler {
	return &IPAssetHandler{ipService: ipService}
}

// GET /ip-assets
func (h *IPAssetHandler) GetIPAssets(c *gin.Context) {
	page, sort, err := utils.GetPaginationParams(c)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	filter, err := utils.GetCatalogFilter(c)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}

	result, err := h.ipService.SearchIPAssets(c.Request.Context(), filter, sort, page)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.PaginatedResponse(c, result)
}

// POST /ip-assets
func (h *IPAssetHandler) CreateIPAsset(c *gin.Context) {
	actor, ok := utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.CreateIPAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	ipAsset, err := h.ipService.CreateIPAsset(c.Request.Context(), actor, &req)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.CreatedResponse(c, ipAsset)
}

// GET /ip-assets/:id
func (h *IPAssetHandler) GetIPAsset(c *gin.Context) {
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	ipAsset, err := h.ipService.GetIPAsset(c.Request.Context(), id)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, ipAsset)
}

// PUT /ip-assets/:id/status
func (h *IPAssetHandler) UpdateIPAssetStatus(c *gin.Context) {
	actor, ok := utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateIPAssetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	ipAsset, err := h.ipService.UpdateIPAssetStatus(c.Request.Context(), actor, id, &req)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, ipAsset)
}

// POST /ip-assets/:id/license-terms
func (h *IPAssetHandler) CreateLicenseTerms(c *gin.Context) {
	actor, ok := utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.CreateLicenseTermsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	terms, err := h.ipService.CreateLicenseTerms(c.Request.Context(), actor, id, &req)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.CreatedResponse(c, terms)
}
