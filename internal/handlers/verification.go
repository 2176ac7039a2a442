// internal/handlers/verification.go
package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

type VerificationHandler struct {
	authorizationService *services.AuthorizationService
}

// VerificationResponse stamps a verification result with the time it was served.
type VerificationResponse struct {
	*services.VerificationResult
	VerifiedAt time.Time `json:"verified_at"`
}

type DeactivateAuthorizationRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

func NewVerificationHandler(authorizationService *services.AuthorizationService) *VerificationHandler {
	return &VerificationHandler{authorizationService: authorizationService}
}

// GET /verify/:code
// Unknown or inactive codes answer 200 with valid=false.
func (h *VerificationHandler) VerifyProduct(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		utils.BadRequestResponse(c, "Verification code is required", nil)
		return
	}

	result, err := h.authorizationService.Verify(c.Request.Context(), code)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, VerificationResponse{
		VerificationResult: result,
		VerifiedAt:         time.Now().UTC(),
	})
}

// GET /products/:id/authorizations
func (h *VerificationHandler) GetAuthorizationHistory(c *gin.Context) {
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	chains, err := h.authorizationService.History(c.Request.Context(), id)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, chains)
}

// PUT /admin/products/:id/authorization/deactivate
func (h *VerificationHandler) DeactivateAuthorization(c *gin.Context) {
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req DeactivateAuthorizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	chain, err := h.authorizationService.Deactivate(c.Request.Context(), id, req.Reason)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, chain)
}
