// internal/services/ip_service.go
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/imi-licensing/internal/apperrors"
	"github.com/javajoker/imi-licensing/internal/catalog"
	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/repository"
	"github.com/javajoker/imi-licensing/internal/utils"
)

type IPService struct {
	store             repository.Store
	blockchainService *BlockchainService
	logger            *logrus.Entry
}

type CreateIPAssetRequest struct {
	Title       string                 `json:"title" validate:"required,min=3,max=255"`
	Description string                 `json:"description" validate:"max=5000"`
	Category    string                 `json:"category" validate:"required,max=100"`
	ContentType string                 `json:"content_type" validate:"required,max=50"`
	FileURLs    []string               `json:"file_urls,omitempty" validate:"max=20,dive,url"`
	Tags        []string               `json:"tags,omitempty" validate:"max=20,dive,min=1,max=50"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type CreateLicenseTermsRequest struct {
	LicenseType            models.LicenseType `json:"license_type" validate:"required,oneof=standard premium exclusive"`
	RevenueSharePercentage decimal.Decimal    `json:"revenue_share_percentage" validate:"gte=0,lte=100"`
	BaseFee                decimal.Decimal    `json:"base_fee" validate:"gte=0"`
	Territory              string             `json:"territory,omitempty" validate:"max=100"`
	Duration               string             `json:"duration,omitempty" validate:"license_duration"`
	Requirements           string             `json:"requirements,omitempty"`
	Restrictions           string             `json:"restrictions,omitempty"`
	AutoApprove            bool               `json:"auto_approve,omitempty"`
	MaxLicenses            int                `json:"max_licenses,omitempty" validate:"gte=0"`
}

type UpdateIPAssetStatusRequest struct {
	Status models.AssetStatus `json:"status" validate:"required,oneof=active suspended deleted"`
}

func NewIPService(store repository.Store, blockchainService *BlockchainService, logger *logrus.Entry) *IPService {
	return &IPService{
		store:             store,
		blockchainService: blockchainService,
		logger:            componentLogger(logger, "ip"),
	}
}

func (s *IPService) CreateIPAsset(ctx context.Context, actor models.Actor, req *CreateIPAssetRequest) (*models.IPAsset, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	if actor.Role != models.UserTypeCreator && !actor.IsAdmin() {
		return nil, apperrors.Permission("only creators can create IP assets")
	}

	now := time.Now()
	ipAsset := models.IPAsset{
		BaseModel:          models.NewBase(now),
		CreatorID:          actor.ID,
		Title:              req.Title,
		Description:        req.Description,
		Category:           req.Category,
		ContentType:        req.ContentType,
		FileURLs:           req.FileURLs,
		Tags:               req.Tags,
		Metadata:           models.JSONB(req.Metadata),
		VerificationStatus: models.VerificationStatusPending,
		Status:             models.AssetStatusActive,
	}

	hash, err := s.blockchainService.CreateIPRecord(ipAsset.ID, actor.ID, now)
	if err != nil {
		return nil, err
	}
	ipAsset.BlockchainHash = hash

	if err := s.store.Tx(ctx, func(tx repository.Tx) error {
		return tx.IPAssets().Create(ctx, &ipAsset)
	}); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"ip_asset_id": ipAsset.ID,
		"creator_id":  actor.ID,
	}).Info("IP asset created")
	return &ipAsset, nil
}

// CreateLicenseTerms attaches an offer to an asset. Terms are immutable once created.
func (s *IPService) CreateLicenseTerms(ctx context.Context, actor models.Actor, ipAssetID uuid.UUID, req *CreateLicenseTermsRequest) (*models.LicenseTerms, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	if err := requireCents("base_fee", req.BaseFee); err != nil {
		return nil, err
	}

	duration := req.Duration
	if duration == "" {
		duration = "perpetual"
	}
	terms := models.LicenseTerms{
		BaseModel:              models.NewBase(time.Now()),
		IPAssetID:              ipAssetID,
		LicenseType:            req.LicenseType,
		RevenueSharePercentage: req.RevenueSharePercentage.Round(2),
		BaseFee:                req.BaseFee.Round(2),
		Territory:              req.Territory,
		Duration:               duration,
		Requirements:           req.Requirements,
		Restrictions:           req.Restrictions,
		AutoApprove:            req.AutoApprove,
		MaxLicenses:            req.MaxLicenses,
		IsActive:               true,
	}

	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		ipAsset, err := tx.IPAssets().Get(ctx, ipAssetID)
		if err != nil {
			return err
		}
		if ipAsset.CreatorID != actor.ID {
			return apperrors.Permission("only the IP owner can add license terms")
		}
		if ipAsset.Status == models.AssetStatusDeleted {
			return apperrors.ConflictState("IP asset is deleted", string(ipAsset.Status))
		}
		return tx.LicenseTerms().Create(ctx, &terms)
	})
	if err != nil {
		return nil, err
	}
	return &terms, nil
}

// GetIPAsset loads an asset with its license terms and counts the view.
func (s *IPService) GetIPAsset(ctx context.Context, id uuid.UUID) (*models.IPAsset, error) {
	var ipAsset models.IPAsset
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		var err error
		ipAsset, err = tx.IPAssets().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if ipAsset.Status == models.AssetStatusDeleted {
			return apperrors.NotFound("ip asset", id)
		}
		ipAsset.ViewCount++
		if err := tx.IPAssets().Update(ctx, &ipAsset); err != nil {
			return err
		}
		ipAsset.LicenseTerms, err = tx.LicenseTerms().ListByAssets(ctx, []uuid.UUID{id})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ipAsset, nil
}

// SearchIPAssets runs the catalog query over stored assets. An empty status
// filter lists active assets only.
func (s *IPService) SearchIPAssets(ctx context.Context, filter catalog.Filter, sort catalog.Sort, page catalog.PageRequest) (*catalog.Page[models.IPAsset], error) {
	if filter.Status == "" {
		filter.Status = string(models.AssetStatusActive)
	}

	var assets []models.IPAsset
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		var err error
		assets, err = tx.IPAssets().List(ctx, repository.AssetFilter{Status: models.AssetStatus(filter.Status)})
		if err != nil || len(assets) == 0 {
			return err
		}
		ids := make([]uuid.UUID, len(assets))
		for i, a := range assets {
			ids[i] = a.ID
		}
		terms, err := tx.LicenseTerms().ListByAssets(ctx, ids)
		if err != nil {
			return err
		}
		byAsset := make(map[uuid.UUID][]models.LicenseTerms, len(assets))
		for _, t := range terms {
			byAsset[t.IPAssetID] = append(byAsset[t.IPAssetID], t)
		}
		for i := range assets {
			assets[i].LicenseTerms = byAsset[assets[i].ID]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, err := catalog.Query(assets, filter, sort, page)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateIPAssetStatus lets the owner or an admin suspend, reactivate or delete
// an asset. Deleted assets are immutable.
func (s *IPService) UpdateIPAssetStatus(ctx context.Context, actor models.Actor, id uuid.UUID, req *UpdateIPAssetStatusRequest) (*models.IPAsset, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var ipAsset models.IPAsset
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		var err error
		ipAsset, err = tx.IPAssets().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if ipAsset.CreatorID != actor.ID && !actor.IsAdmin() {
			return apperrors.Permission("not allowed to change this IP asset")
		}
		if ipAsset.Status == models.AssetStatusDeleted {
			return apperrors.ConflictState("IP asset is deleted", string(ipAsset.Status))
		}
		ipAsset.Status = req.Status
		return tx.IPAssets().Update(ctx, &ipAsset)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"ip_asset_id": id,
		"status":      req.Status,
		"actor_id":    actor.ID,
	}).Info("IP asset status changed")
	return &ipAsset, nil
}
