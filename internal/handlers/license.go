// internal/handlers/license.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

type LicenseHandler struct {
	licenseService *services.LicenseService
}

func NewLicenseHandler(licenseService *services.LicenseService) *LicenseHandler {
	return &LicenseHandler{licenseService: licenseService}
}

// POST /licenses/apply
func (h *LicenseHandler) ApplyForLicense(c *gin.Context) {
	actor, ok := utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.ApplyLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	decision, err := h.licenseService.SubmitApplication(c.Request.Context(), actor, &req)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.CreatedResponse(c, decision)
}

// GET /licenses?scope=applicant|owner&status=...
func (h *LicenseHandler) GetLicenses(c *gin.Context) {
	actor, ok := utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	page, sort, err := utils.GetPaginationParams(c)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}

	params := services.LicenseListParams{
		Scope:  c.Query("scope"),
		Status: models.ApplicationStatus(c.Query("status")),
		Sort:   sort,
		Page:   page,
	}
	result, err := h.licenseService.ListApplications(c.Request.Context(), actor, params)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.PaginatedResponse(c, result)
}

// GET /licenses/:id
func (h *LicenseHandler) GetLicense(c *gin.Context) {
	actor, ok := utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	app, err := h.licenseService.GetApplication(c.Request.Context(), actor, id)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, app)
}

// PUT /licenses/:id/approve
func (h *LicenseHandler) ApproveLicense(c *gin.Context) {
	actor, ok := utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	decision, err := h.licenseService.Approve(c.Request.Context(), actor, id)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, decision)
}

// PUT /licenses/:id/reject
func (h *LicenseHandler) RejectLicense(c *gin.Context) {
	actor, ok := utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.RejectLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	decision, err := h.licenseService.Reject(c.Request.Context(), actor, id, &req)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, decision)
}

// PUT /licenses/:id/revoke
func (h *LicenseHandler) RevokeLicense(c *gin.Context) {
	actor, ok := utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.RevokeLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	decision, err := h.licenseService.Revoke(c.Request.Context(), actor, id, &req)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, decision)
}

// PUT /admin/licenses/:id/expire
func (h *LicenseHandler) ExpireLicense(c *gin.Context) {
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	decision, err := h.licenseService.Expire(c.Request.Context(), id)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, decision)
}
