// internal/handlers/product.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

type ProductHandler struct {
	productService *services.ProductService
}

func NewProductHandler(productService *services.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// GET /products
func (h *ProductHandler) GetProducts(c *gin.Context) {
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

	result, err := h.productService.SearchProducts(c.Request.Context(), filter, sort, page)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.PaginatedResponse(c, result)
}

// POST /products
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	actor, ok := utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	detail, err := h.productService.CreateProduct(c.Request.Context(), actor, &req)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.CreatedResponse(c, detail)
}

// GET /products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	detail, err := h.productService.GetProduct(c.Request.Context(), id)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, detail)
}

// PUT /products/:id/status
func (h *ProductHandler) UpdateProductStatus(c *gin.Context) {
	actor, ok := utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateProductStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	product, err := h.productService.UpdateProductStatus(c.Request.Context(), actor, id, &req)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, product)
}
