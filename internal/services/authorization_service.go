// internal/services/authorization_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/imi-licensing/internal/apperrors"
	"github.com/javajoker/imi-licensing/internal/config"
	"github.com/javajoker/imi-licensing/internal/event"
	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/repository"
)

type AuthorizationService struct {
	store             repository.Store
	blockchainService *BlockchainService
	events            event.Publisher
	metrics           *Metrics
	logger            *logrus.Entry
	codePrefix        string
	maxIssueAttempts  int
}

// VerificationResult is the public answer for a verification code. Only Valid
// is set when the code does not resolve to a live authorization.
type VerificationResult struct {
	Valid   bool                       `json:"valid"`
	Product *models.Product            `json:"product,omitempty"`
	License *models.LicenseApplication `json:"license,omitempty"`
	IPAsset *models.IPAsset            `json:"ip_asset,omitempty"`
	Chain   *models.AuthorizationChain `json:"chain,omitempty"`
}

func NewAuthorizationService(store repository.Store, blockchainService *BlockchainService, events event.Publisher, metrics *Metrics, cfg config.MarketplaceConfig, logger *logrus.Entry) *AuthorizationService {
	prefix := cfg.VerificationCodePrefix
	if prefix == "" {
		prefix = "IMI"
	}
	attempts := cfg.MaxIssueAttempts
	if attempts < 1 {
		attempts = 5
	}
	return &AuthorizationService{
		store:             store,
		blockchainService: blockchainService,
		events:            events,
		metrics:           metrics,
		logger:            componentLogger(logger, "authorization"),
		codePrefix:        prefix,
		maxIssueAttempts:  attempts,
	}
}

// Issue creates the authorization chain binding a product to its license.
func (s *AuthorizationService) Issue(ctx context.Context, productID, licenseID uuid.UUID) (*models.AuthorizationChain, error) {
	var (
		chain models.AuthorizationChain
		box   outbox
	)
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		product, err := tx.Products().GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		license, err := tx.Applications().Get(ctx, licenseID)
		if err != nil {
			return err
		}
		// license state is reported before the product/license pairing
		now := time.Now()
		if !license.IsActive(now) {
			return apperrors.ConflictState("license is not approved", licenseState(license, now))
		}
		if product.LicenseID != licenseID {
			return apperrors.Validation("product %s was not created under license %s", productID, licenseID)
		}
		chain, err = s.issueTx(ctx, tx, product, license, now)
		if err != nil {
			return err
		}
		box.add(event.AuthorizationIssued, authorizationEvent(chain, ""))
		return nil
	})
	if err != nil {
		return nil, err
	}
	box.flush(s.events, s.logger)
	return &chain, nil
}

// issueTx runs inside the caller's unit of work.
func (s *AuthorizationService) issueTx(ctx context.Context, tx repository.Tx, product models.Product, license models.LicenseApplication, now time.Time) (models.AuthorizationChain, error) {
	if !license.IsActive(now) {
		return models.AuthorizationChain{}, apperrors.ConflictState("license is not approved", licenseState(license, now))
	}

	if _, err := tx.Chains().GetActiveByProduct(ctx, product.ID); err == nil {
		return models.AuthorizationChain{}, apperrors.ConflictState("product already has an active authorization", "active")
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return models.AuthorizationChain{}, err
	}

	count, err := tx.Chains().CountByProduct(ctx, product.ID)
	if err != nil {
		return models.AuthorizationChain{}, err
	}

	issuedAt := now.UTC().Truncate(time.Microsecond)
	seq := int(count) + 1
	code := ""
	collisions := 0
	for attempt := 0; attempt < s.maxIssueAttempts; attempt++ {
		candidate := s.verificationCode(product.ID, seq, issuedAt)
		exists, err := tx.Chains().CodeExists(ctx, candidate)
		if err != nil {
			return models.AuthorizationChain{}, err
		}
		if !exists {
			code = candidate
			break
		}
		collisions++
		seq++
	}
	if code == "" {
		return models.AuthorizationChain{}, apperrors.Conflict(fmt.Sprintf("no free verification code after %d attempts", s.maxIssueAttempts))
	}

	hash, err := s.blockchainService.CreateProductRecord(product.ID, license.ID, issuedAt)
	if err != nil {
		return models.AuthorizationChain{}, err
	}

	chain := models.AuthorizationChain{
		BaseModel:        models.NewBase(issuedAt),
		ProductID:        product.ID,
		IPAssetID:        license.IPAssetID,
		LicenseID:        license.ID,
		Sequence:         seq,
		BlockchainHash:   hash,
		VerificationCode: code,
		IsActive:         true,
	}
	if err := tx.Chains().Create(ctx, &chain); err != nil {
		return models.AuthorizationChain{}, err
	}

	s.metrics.chainIssued(collisions)
	s.logger.WithFields(logrus.Fields{
		"product_id":        product.ID,
		"license_id":        license.ID,
		"verification_code": code,
	}).Info("authorization chain issued")

	return chain, nil
}

// verificationCode formats PREFIX-XXXXXXXX-SEQ-YEAR from the product id.
func (s *AuthorizationService) verificationCode(productID uuid.UUID, seq int, at time.Time) string {
	hexID := strings.ReplaceAll(productID.String(), "-", "")
	return fmt.Sprintf("%s-%s-%03d-%d", s.codePrefix, strings.ToUpper(hexID[:8]), seq, at.Year())
}

// Verify never fails for unknown codes; they yield Valid=false.
func (s *AuthorizationService) Verify(ctx context.Context, code string) (*VerificationResult, error) {
	now := time.Now()
	result := &VerificationResult{}

	code = strings.TrimSpace(code)
	if code == "" {
		s.metrics.verified(false)
		return result, nil
	}

	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		chain, err := tx.Chains().GetByCode(ctx, code)
		if err != nil {
			return err
		}
		if !chain.IsActive {
			return nil
		}
		if !s.blockchainService.VerifyProductRecord(chain.BlockchainHash, chain.ProductID, chain.LicenseID, chain.CreatedAt) {
			s.logger.WithFields(logrus.Fields{
				"chain_id":          chain.ID,
				"verification_code": chain.VerificationCode,
			}).Warn("authorization anchor does not match its record")
			return nil
		}
		license, err := tx.Applications().Get(ctx, chain.LicenseID)
		if err != nil {
			return err
		}
		if !license.IsActive(now) {
			return nil
		}
		product, err := tx.Products().Get(ctx, chain.ProductID)
		if err != nil {
			return err
		}
		asset, err := tx.IPAssets().Get(ctx, chain.IPAssetID)
		if err != nil {
			return err
		}

		result.Valid = true
		result.Chain = &chain
		result.License = &license
		result.Product = &product
		result.IPAsset = &asset
		return nil
	})
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	s.metrics.verified(result.Valid)
	return result, nil
}

// Deactivate turns off the active chain of a product.
func (s *AuthorizationService) Deactivate(ctx context.Context, productID uuid.UUID, reason string) (*models.AuthorizationChain, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.ValidationFields("invalid input", []apperrors.FieldError{{Field: "reason", Message: "Reason is required"}})
	}

	var (
		chain models.AuthorizationChain
		box   outbox
	)
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		var err error
		chain, err = tx.Chains().GetActiveByProduct(ctx, productID)
		if err != nil {
			return err
		}
		if err := s.deactivateTx(ctx, tx, &chain, reason, time.Now()); err != nil {
			return err
		}
		box.add(event.AuthorizationDeactivated, authorizationEvent(chain, reason))
		return nil
	})
	if err != nil {
		return nil, err
	}
	box.flush(s.events, s.logger)
	return &chain, nil
}

func (s *AuthorizationService) deactivateTx(ctx context.Context, tx repository.Tx, chain *models.AuthorizationChain, reason string, now time.Time) error {
	chain.IsActive = false
	chain.DeactivatedAt = &now
	chain.DeactivationReason = reason
	if err := tx.Chains().Update(ctx, chain); err != nil {
		return err
	}
	s.metrics.chainDeactivated()
	s.logger.WithFields(logrus.Fields{
		"product_id": chain.ProductID,
		"chain_id":   chain.ID,
		"reason":     reason,
	}).Info("authorization chain deactivated")
	return nil
}

// History lists every chain ever issued for a product, newest first.
func (s *AuthorizationService) History(ctx context.Context, productID uuid.UUID) ([]models.AuthorizationChain, error) {
	var chains []models.AuthorizationChain
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		if _, err := tx.Products().Get(ctx, productID); err != nil {
			return err
		}
		var err error
		chains, err = tx.Chains().ListByProduct(ctx, productID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch authorization chain history: %w", err)
	}
	return chains, nil
}

// requireAuthorizedTx confirms product has an active chain under a live license.
func (s *AuthorizationService) requireAuthorizedTx(ctx context.Context, tx repository.Tx, productID uuid.UUID, now time.Time) (models.AuthorizationChain, models.LicenseApplication, error) {
	chain, err := tx.Chains().GetActiveByProduct(ctx, productID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return chain, models.LicenseApplication{}, apperrors.ConflictState("product has no active authorization", "unauthorized")
	}
	if err != nil {
		return chain, models.LicenseApplication{}, err
	}
	license, err := tx.Applications().Get(ctx, chain.LicenseID)
	if err != nil {
		return chain, license, err
	}
	if !license.IsActive(now) {
		return chain, license, apperrors.ConflictState("product license is not approved", licenseState(license, now))
	}
	return chain, license, nil
}

func licenseState(license models.LicenseApplication, now time.Time) string {
	if license.Status == models.ApplicationStatusApproved && !license.IsActive(now) {
		return string(models.ApplicationStatusExpired)
	}
	return string(license.Status)
}

func authorizationEvent(chain models.AuthorizationChain, reason string) event.AuthorizationEvent {
	return event.AuthorizationEvent{
		ChainID:          chain.ID,
		ProductID:        chain.ProductID,
		LicenseID:        chain.LicenseID,
		IPAssetID:        chain.IPAssetID,
		VerificationCode: chain.VerificationCode,
		Reason:           reason,
	}
}
