// internal/handlers/cart.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/javajoker/imi-licensing/internal/cart"
	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

type CartHandler struct {
	carts          *cart.Manager
	productService *services.ProductService
}

type AddCartItemRequest struct {
	ProductID uuid.UUID         `json:"product_id" binding:"required"`
	Quantity  int               `json:"quantity" binding:"min=0,max=1000"` // 0 or missing adds one
	Options   map[string]string `json:"options,omitempty"`
}

type UpdateCartItemRequest struct {
	Key      string `json:"key" binding:"required"`
	Quantity int    `json:"quantity" binding:"min=0,max=1000"`
}

type CartResponse struct {
	OwnerID    uuid.UUID       `json:"owner_id"`
	Items      []cart.Item     `json:"items"`
	TotalItems int             `json:"total_items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

func NewCartHandler(carts *cart.Manager, productService *services.ProductService) *CartHandler {
	return &CartHandler{carts: carts, productService: productService}
}

func cartResponse(c *cart.Cart) CartResponse {
	items := c.Items()
	if items == nil {
		items = []cart.Item{}
	}
	return CartResponse{
		OwnerID:    c.OwnerID,
		Items:      items,
		TotalItems: c.TotalItems(),
		TotalPrice: c.TotalPrice(),
	}
}

// GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	current, err := h.carts.Load(c.Request.Context(), userID)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, cartResponse(current))
}

// POST /cart/items
func (h *CartHandler) AddItem(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if req.Quantity == 0 {
		req.Quantity = 1
	}

	product, err := h.productService.PurchasableProduct(c.Request.Context(), req.ProductID)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}

	updated, err := h.carts.Update(c.Request.Context(), userID, func(current *cart.Cart) error {
		_, err := current.AddItem(product, req.Quantity, req.Options)
		return err
	})
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, cartResponse(updated))
}

// PUT /cart/items
// A zero quantity removes the line.
func (h *CartHandler) UpdateItem(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	updated, err := h.carts.Update(c.Request.Context(), userID, func(current *cart.Cart) error {
		return current.UpdateQuantity(req.Key, req.Quantity)
	})
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, cartResponse(updated))
}

// DELETE /cart/items?key=...
func (h *CartHandler) RemoveItem(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	key := c.Query("key")
	if key == "" {
		utils.BadRequestResponse(c, "Item key is required", nil)
		return
	}

	updated, err := h.carts.Update(c.Request.Context(), userID, func(current *cart.Cart) error {
		return current.RemoveItem(key)
	})
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, cartResponse(updated))
}

// DELETE /cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	if err := h.carts.Discard(c.Request.Context(), userID); err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, cartResponse(cart.New(userID)))
}
