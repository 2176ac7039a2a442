// internal/services/product_service.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/imi-licensing/internal/apperrors"
	"github.com/javajoker/imi-licensing/internal/catalog"
	"github.com/javajoker/imi-licensing/internal/event"
	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/repository"
	"github.com/javajoker/imi-licensing/internal/utils"
)

type ProductService struct {
	store                repository.Store
	authorizationService *AuthorizationService
	events               event.Publisher
	logger               *logrus.Entry
}

type CreateProductRequest struct {
	LicenseID      uuid.UUID              `json:"license_id" validate:"required"`
	Title          string                 `json:"title" validate:"required,min=3,max=255"`
	Description    string                 `json:"description" validate:"max=5000"`
	Category       string                 `json:"category" validate:"required,max=100"`
	Price          decimal.Decimal        `json:"price" validate:"gt=0"`
	InventoryCount int                    `json:"inventory_count" validate:"gte=0"`
	Images         []string               `json:"images,omitempty" validate:"max=10,dive,url"`
	Specifications map[string]interface{} `json:"specifications,omitempty"`
	Tags           []string               `json:"tags,omitempty" validate:"max=20,dive,min=1,max=50"`
	Status         models.ProductStatus   `json:"status,omitempty" validate:"omitempty,oneof=draft active"`
}

type UpdateProductStatusRequest struct {
	Status models.ProductStatus `json:"status" validate:"required,oneof=draft active sold_out suspended"`
}

// ProductDetail pairs a product with its live authorization, if any.
type ProductDetail struct {
	models.Product
	Authorization *models.AuthorizationChain `json:"authorization,omitempty"`
}

func NewProductService(store repository.Store, authorizationService *AuthorizationService, events event.Publisher, logger *logrus.Entry) *ProductService {
	return &ProductService{
		store:                store,
		authorizationService: authorizationService,
		events:               events,
		logger:               componentLogger(logger, "product"),
	}
}

// CreateProduct stores a product made under an approved license held by the
// actor and issues its authorization chain in the same unit of work.
func (s *ProductService) CreateProduct(ctx context.Context, actor models.Actor, req *CreateProductRequest) (*ProductDetail, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := requireCents("price", req.Price); err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = models.ProductStatusActive
	}

	var (
		detail ProductDetail
		box    outbox
	)
	now := time.Now()
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		license, err := tx.Applications().GetForUpdate(ctx, req.LicenseID)
		if err != nil {
			return err
		}
		if license.ApplicantID != actor.ID {
			return apperrors.Permission("license does not belong to you")
		}
		if !license.IsActive(now) {
			return apperrors.ConflictState("license is not approved", licenseState(license, now))
		}

		product := models.Product{
			BaseModel:            models.NewBase(now),
			CreatorID:            actor.ID,
			LicenseID:            license.ID,
			Title:                req.Title,
			Description:          req.Description,
			Category:             req.Category,
			Price:                req.Price.Round(2),
			InventoryCount:       req.InventoryCount,
			Images:               req.Images,
			Specifications:       models.JSONB(req.Specifications),
			Status:               status,
			AuthenticityVerified: true,
			Tags:                 req.Tags,
		}
		if err := tx.Products().Create(ctx, &product); err != nil {
			return err
		}

		chain, err := s.authorizationService.issueTx(ctx, tx, product, license, now)
		if err != nil {
			return err
		}

		detail.Product = product
		detail.Authorization = &chain
		box.add(event.AuthorizationIssued, authorizationEvent(chain, ""))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"product_id": detail.ID,
		"license_id": req.LicenseID,
		"creator_id": actor.ID,
	}).Info("product created")
	box.flush(s.events, s.logger)
	return &detail, nil
}

// GetProduct loads a product with its active authorization and counts the view.
func (s *ProductService) GetProduct(ctx context.Context, id uuid.UUID) (*ProductDetail, error) {
	var detail ProductDetail
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		product, err := tx.Products().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		product.ViewCount++
		if err := tx.Products().Update(ctx, &product); err != nil {
			return err
		}
		detail.Product = product

		chain, err := tx.Chains().GetActiveByProduct(ctx, id)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		detail.Authorization = &chain
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// SearchProducts runs the catalog query over stored products. An empty status
// filter lists active products only.
func (s *ProductService) SearchProducts(ctx context.Context, filter catalog.Filter, sort catalog.Sort, page catalog.PageRequest) (*catalog.Page[models.Product], error) {
	if filter.Status == "" {
		filter.Status = string(models.ProductStatusActive)
	}

	var products []models.Product
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		var err error
		products, err = tx.Products().List(ctx, repository.ProductFilter{Status: models.ProductStatus(filter.Status)})
		return err
	})
	if err != nil {
		return nil, err
	}

	result, err := catalog.Query(products, filter, sort, page)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateProductStatus is open to the product creator and admins. Activating a
// product requires a live authorization.
func (s *ProductService) UpdateProductStatus(ctx context.Context, actor models.Actor, id uuid.UUID, req *UpdateProductStatusRequest) (*models.Product, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var product models.Product
	now := time.Now()
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		var err error
		product, err = tx.Products().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if product.CreatorID != actor.ID && !actor.IsAdmin() {
			return apperrors.Permission("not allowed to change this product")
		}
		if req.Status == models.ProductStatusActive {
			if product.InventoryCount <= 0 {
				return apperrors.ConflictState("product has no inventory", string(product.Status))
			}
			if _, _, err := s.authorizationService.requireAuthorizedTx(ctx, tx, id, now); err != nil {
				return err
			}
		}
		product.Status = req.Status
		return tx.Products().Update(ctx, &product)
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// PurchasableProduct returns an active product with stock for cart use. It
// does not count a view.
func (s *ProductService) PurchasableProduct(ctx context.Context, id uuid.UUID) (models.Product, error) {
	var product models.Product
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		var err error
		product, err = tx.Products().Get(ctx, id)
		return err
	})
	if err != nil {
		return models.Product{}, err
	}
	if product.Status != models.ProductStatusActive {
		return models.Product{}, apperrors.ConflictState("product is not available", string(product.Status))
	}
	if product.InventoryCount <= 0 {
		return models.Product{}, apperrors.ConflictState("product is out of stock", string(models.ProductStatusSoldOut))
	}
	return product, nil
}

// requireCents rejects amounts with sub-cent precision so nothing is rounded
// away after validation.
func requireCents(field string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(2)) {
		return apperrors.ValidationFields("invalid input", []apperrors.FieldError{
			{Field: field, Message: "Amount must have at most 2 decimal places"},
		})
	}
	return nil
}
