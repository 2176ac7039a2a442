// internal/services/order_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/imi-licensing/internal/apperrors"
	"github.com/javajoker/imi-licensing/internal/cart"
	"github.com/javajoker/imi-licensing/internal/catalog"
	"github.com/javajoker/imi-licensing/internal/config"
	"github.com/javajoker/imi-licensing/internal/event"
	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/repository"
	"github.com/javajoker/imi-licensing/internal/revenue"
	"github.com/javajoker/imi-licensing/internal/utils"
)

type OrderService struct {
	store                repository.Store
	authorizationService *AuthorizationService
	events               event.Publisher
	metrics              *Metrics
	logger               *logrus.Entry
	platformFeePercent   decimal.Decimal
}

type CheckoutRequest struct {
	PaymentMethod    string `json:"payment_method" validate:"required,oneof=card paypal bank_transfer wallet"`
	PaymentReference string `json:"payment_reference" validate:"max=255"`
}

type RefundRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type CheckoutResult struct {
	Transactions []models.Transaction `json:"transactions"`
	TotalAmount  decimal.Decimal      `json:"total_amount"`
	PlatformFee  decimal.Decimal      `json:"platform_fee"`
}

type TransactionListParams struct {
	Type   models.TransactionType
	Status models.TransactionStatus
	Sort   catalog.Sort
	Page   catalog.PageRequest
}

func NewOrderService(store repository.Store, authorizationService *AuthorizationService, events event.Publisher, metrics *Metrics, cfg config.MarketplaceConfig, logger *logrus.Entry) *OrderService {
	return &OrderService{
		store:                store,
		authorizationService: authorizationService,
		events:               events,
		metrics:              metrics,
		logger:               componentLogger(logger, "order"),
		platformFeePercent:   cfg.PlatformFeePercent,
	}
}

// Checkout turns every cart line into a completed product sale. Lines are
// priced at the stored product price. Either every line succeeds or nothing
// is written.
func (s *OrderService) Checkout(ctx context.Context, actor models.Actor, c *cart.Cart, req *CheckoutRequest) (*CheckoutResult, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if c == nil || c.IsEmpty() {
		return nil, apperrors.Validation("cart is empty")
	}
	if c.OwnerID != actor.ID {
		return nil, apperrors.Permission("cart does not belong to you")
	}
	if req.PaymentReference == "" {
		ref, err := utils.GeneratePaymentReference()
		if err != nil {
			return nil, fmt.Errorf("failed to generate payment reference: %w", err)
		}
		req.PaymentReference = ref
	}

	result := &CheckoutResult{TotalAmount: decimal.Zero, PlatformFee: decimal.Zero}
	var box outbox
	now := time.Now()
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		for _, line := range c.Items() {
			txn, ipCreatorID, err := s.sellLine(ctx, tx, actor, line, req, now)
			if err != nil {
				return err
			}
			result.Transactions = append(result.Transactions, txn)
			result.TotalAmount = result.TotalAmount.Add(txn.Amount)
			result.PlatformFee = result.PlatformFee.Add(txn.PlatformFee)
			box.add(event.TransactionCompleted, transactionEvent(txn, ipCreatorID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, txn := range result.Transactions {
		s.metrics.sold(txn.Amount)
	}
	s.logger.WithFields(logrus.Fields{
		"buyer_id": actor.ID,
		"lines":    len(result.Transactions),
		"total":    result.TotalAmount.StringFixed(2),
	}).Info("checkout completed")
	box.flush(s.events, s.logger)
	return result, nil
}

func (s *OrderService) sellLine(ctx context.Context, tx repository.Tx, actor models.Actor, line cart.Item, req *CheckoutRequest, now time.Time) (models.Transaction, uuid.UUID, error) {
	product, err := tx.Products().GetForUpdate(ctx, line.ProductID)
	if err != nil {
		return models.Transaction{}, uuid.Nil, err
	}
	if product.Status != models.ProductStatusActive {
		return models.Transaction{}, uuid.Nil, apperrors.ConflictState("product "+product.Title+" is not for sale", string(product.Status))
	}
	if product.CreatorID == actor.ID {
		return models.Transaction{}, uuid.Nil, apperrors.Permission("cannot buy your own product")
	}
	if product.InventoryCount < line.Quantity {
		return models.Transaction{}, uuid.Nil, apperrors.Conflict("insufficient inventory for " + product.Title)
	}

	chain, license, err := s.authorizationService.requireAuthorizedTx(ctx, tx, product.ID, now)
	if err != nil {
		return models.Transaction{}, uuid.Nil, err
	}
	terms, err := tx.LicenseTerms().Get(ctx, license.LicenseTermsID)
	if err != nil {
		return models.Transaction{}, uuid.Nil, err
	}
	ipAsset, err := tx.IPAssets().Get(ctx, chain.IPAssetID)
	if err != nil {
		return models.Transaction{}, uuid.Nil, err
	}

	gross := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
	shares, err := revenue.Distribute(gross, terms, s.platformFeePercent)
	if err != nil {
		return models.Transaction{}, uuid.Nil, err
	}
	if err := shares.Verify(); err != nil {
		return models.Transaction{}, uuid.Nil, err
	}

	productID := product.ID
	licenseID := license.ID
	txn := models.Transaction{
		BaseModel:        models.NewBase(now),
		TransactionType:  models.TransactionTypeProductSale,
		BuyerID:          actor.ID,
		SellerID:         product.CreatorID,
		ProductID:        &productID,
		LicenseID:        &licenseID,
		Quantity:         line.Quantity,
		Amount:           shares.Gross,
		PlatformFee:      shares.Platform,
		RevenueShares:    shares.Map(),
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		Status:           models.TransactionStatusCompleted,
		ProcessedAt:      &now,
	}
	if err := tx.Transactions().Create(ctx, &txn); err != nil {
		return models.Transaction{}, uuid.Nil, err
	}

	product.InventoryCount -= line.Quantity
	product.SalesCount += int64(line.Quantity)
	if product.InventoryCount == 0 {
		product.Status = models.ProductStatusSoldOut
	}
	if err := tx.Products().Update(ctx, &product); err != nil {
		return models.Transaction{}, uuid.Nil, err
	}
	return txn, ipAsset.CreatorID, nil
}

// SettleTransaction marks a pending transaction paid. Admin only.
func (s *OrderService) SettleTransaction(ctx context.Context, actor models.Actor, id uuid.UUID, paymentReference string) (*models.Transaction, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Permission("only admins can settle transactions")
	}

	var (
		txn models.Transaction
		box outbox
	)
	now := time.Now()
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		var err error
		txn, err = tx.Transactions().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if txn.Status != models.TransactionStatusPending {
			return apperrors.ConflictState("transaction cannot be settled", string(txn.Status))
		}
		txn.Status = models.TransactionStatusCompleted
		txn.ProcessedAt = &now
		if ref := strings.TrimSpace(paymentReference); ref != "" {
			txn.PaymentReference = ref
		}
		if err := tx.Transactions().Update(ctx, &txn); err != nil {
			return err
		}
		box.add(event.TransactionCompleted, transactionEvent(txn, uuid.Nil))
		return nil
	})
	if err != nil {
		return nil, err
	}
	box.flush(s.events, s.logger)
	return &txn, nil
}

// FailTransaction marks a pending transaction as failed. Admin only.
func (s *OrderService) FailTransaction(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Transaction, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Permission("only admins can fail transactions")
	}

	var txn models.Transaction
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		var err error
		txn, err = tx.Transactions().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if txn.Status != models.TransactionStatusPending {
			return apperrors.ConflictState("transaction cannot fail", string(txn.Status))
		}
		txn.Status = models.TransactionStatusFailed
		return tx.Transactions().Update(ctx, &txn)
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// RefundTransaction reverses a completed transaction. Product sales give their
// units back to inventory.
func (s *OrderService) RefundTransaction(ctx context.Context, actor models.Actor, id uuid.UUID, req *RefundRequest) (*models.Transaction, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var txn models.Transaction
	now := time.Now()
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		var err error
		txn, err = tx.Transactions().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if txn.SellerID != actor.ID && !actor.IsAdmin() {
			return apperrors.Permission("only the seller or an admin can refund")
		}
		if txn.Status != models.TransactionStatusCompleted {
			return apperrors.ConflictState("transaction cannot be refunded", string(txn.Status))
		}
		txn.Status = models.TransactionStatusRefunded
		txn.RefundedAt = &now
		txn.RefundReason = req.Reason
		if err := tx.Transactions().Update(ctx, &txn); err != nil {
			return err
		}

		if txn.TransactionType != models.TransactionTypeProductSale || txn.ProductID == nil {
			return nil
		}
		product, err := tx.Products().GetForUpdate(ctx, *txn.ProductID)
		if err != nil {
			return err
		}
		product.InventoryCount += txn.Quantity
		product.SalesCount -= int64(txn.Quantity)
		if product.SalesCount < 0 {
			product.SalesCount = 0
		}
		if product.Status == models.ProductStatusSoldOut {
			product.Status = models.ProductStatusActive
		}
		return tx.Products().Update(ctx, &product)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"transaction_id": id,
		"actor_id":       actor.ID,
	}).Info("transaction refunded")
	return &txn, nil
}

// GetTransaction is visible to the buyer, the seller and admins.
func (s *OrderService) GetTransaction(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		var err error
		txn, err = tx.Transactions().Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if txn.BuyerID != actor.ID && txn.SellerID != actor.ID && !actor.IsAdmin() {
		return nil, apperrors.Permission("not allowed to view this transaction")
	}
	return &txn, nil
}

// ListTransactions lists the actor's transactions as buyer or seller. Admins see all.
func (s *OrderService) ListTransactions(ctx context.Context, actor models.Actor, params TransactionListParams) (*catalog.Page[models.Transaction], error) {
	filter := repository.TransactionFilter{Type: params.Type, Status: params.Status}
	if !actor.IsAdmin() {
		partyID := actor.ID
		filter.PartyID = &partyID
	}

	var txns []models.Transaction
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		var err error
		txns, err = tx.Transactions().List(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}

	page, err := catalog.Query(txns, catalog.Filter{}, params.Sort, params.Page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func transactionEvent(txn models.Transaction, ipCreatorID uuid.UUID) event.TransactionEvent {
	shares := make(map[string]decimal.Decimal, len(txn.RevenueShares))
	for role, amount := range txn.RevenueShares {
		shares[string(role)] = amount
	}
	evt := event.TransactionEvent{
		TransactionID: txn.ID,
		Type:          string(txn.TransactionType),
		BuyerID:       txn.BuyerID,
		SellerID:      txn.SellerID,
		IPCreatorID:   ipCreatorID,
		Amount:        txn.Amount,
		Shares:        shares,
	}
	if txn.ProductID != nil {
		evt.ProductID = *txn.ProductID
	}
	return evt
}
