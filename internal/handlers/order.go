// internal/handlers/order.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/imi-licensing/internal/cart"
	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

type OrderHandler struct {
	orderService *services.OrderService
	carts        *cart.Manager
	logger       *logrus.Entry
}

type SettleTransactionRequest struct {
	PaymentReference string `json:"payment_reference" binding:"max=255"`
}

func NewOrderHandler(orderService *services.OrderService, carts *cart.Manager, logger *logrus.Entry) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		carts:        carts,
		logger:       logger,
	}
}

// POST /orders/checkout
// Sells the caller's cart as one unit and empties it on success.
func (h *OrderHandler) Checkout(c *gin.Context) {
	actor, ok := utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	// load, sell and clear under the owner's cart lock
	var result *services.CheckoutResult
	_, err := h.carts.Update(c.Request.Context(), actor.ID, func(current *cart.Cart) error {
		sold, err := h.orderService.Checkout(c.Request.Context(), actor, current, &req)
		if err != nil {
			return err
		}
		result = sold
		current.Clear()
		return nil
	})
	if err != nil && result == nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("user_id", actor.ID).Warn("Failed to clear cart after checkout")
	}
	utils.CreatedResponse(c, result)
}

// GET /transactions
func (h *OrderHandler) GetTransactions(c *gin.Context) {
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

	params := services.TransactionListParams{
		Type:   models.TransactionType(c.Query("type")),
		Status: models.TransactionStatus(c.Query("status")),
		Sort:   sort,
		Page:   page,
	}
	result, err := h.orderService.ListTransactions(c.Request.Context(), actor, params)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.PaginatedResponse(c, result)
}

// GET /transactions/:id
func (h *OrderHandler) GetTransaction(c *gin.Context) {
	actor, ok := utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	txn, err := h.orderService.GetTransaction(c.Request.Context(), actor, id)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, txn)
}

// POST /transactions/:id/refund
func (h *OrderHandler) RefundTransaction(c *gin.Context) {
	actor, ok := utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	txn, err := h.orderService.RefundTransaction(c.Request.Context(), actor, id, &req)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, txn)
}

// PUT /admin/transactions/:id/settle
func (h *OrderHandler) SettleTransaction(c *gin.Context) {
	actor, ok := utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req SettleTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	txn, err := h.orderService.SettleTransaction(c.Request.Context(), actor, id, req.PaymentReference)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, txn)
}

// PUT /admin/transactions/:id/fail
func (h *OrderHandler) FailTransaction(c *gin.Context) {
	actor, ok := utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	id, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	txn, err := h.orderService.FailTransaction(c.Request.Context(), actor, id)
	if err != nil {
		utils.ErrorFromDomain(c, err)
		return
	}
	utils.SuccessResponse(c, txn)
}
