// internal/services/license_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/imi-licensing/internal/apperrors"
	"github.com/javajoker/imi-licensing/internal/catalog"
	"github.com/javajoker/imi-licensing/internal/config"
	"github.com/javajoker/imi-licensing/internal/event"
	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/repository"
	"github.com/javajoker/imi-licensing/internal/revenue"
	"github.com/javajoker/imi-licensing/internal/utils"
)

type LicenseService struct {
	store                repository.Store
	authorizationService *AuthorizationService
	events               event.Publisher
	metrics              *Metrics
	logger               *logrus.Entry
	platformFeePercent   decimal.Decimal
}

type ApplyLicenseRequest struct {
	IPAssetID           uuid.UUID              `json:"ip_asset_id" validate:"required"`
	LicenseTermsID      uuid.UUID              `json:"license_terms_id" validate:"required"`
	IntendedUse         string                 `json:"intended_use" validate:"max=2000"`
	PortfolioLinks      []string               `json:"portfolio_links" validate:"max=10,dive,url"`
	BusinessDescription string                 `json:"business_description" validate:"max=2000"`
	Message             string                 `json:"message,omitempty" validate:"max=1000"`
	ApplicationData     map[string]interface{} `json:"application_data,omitempty"`
}

type RejectLicenseRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type RevokeLicenseRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// LicenseListParams scopes a listing. Scope "applicant" lists the actor's own
// applications, "owner" those made against the actor's assets, empty both.
type LicenseListParams struct {
	Scope  string
	Status models.ApplicationStatus
	Sort   catalog.Sort
	Page   catalog.PageRequest
}

// LicenseDecision is the outcome of a workflow transition.
type LicenseDecision struct {
	Application models.LicenseApplication  `json:"application"`
	Fee         *models.Transaction        `json:"fee,omitempty"`
	Deactivated []models.AuthorizationChain `json:"deactivated_chains,omitempty"`
}

func NewLicenseService(store repository.Store, authorizationService *AuthorizationService, events event.Publisher, metrics *Metrics, cfg config.MarketplaceConfig, logger *logrus.Entry) *LicenseService {
	return &LicenseService{
		store:                store,
		authorizationService: authorizationService,
		events:               events,
		metrics:              metrics,
		logger:               componentLogger(logger, "license"),
		platformFeePercent:   cfg.PlatformFeePercent,
	}
}

// SubmitApplication opens a pending application, or an approved one when the
// terms auto-approve.
func (s *LicenseService) SubmitApplication(ctx context.Context, actor models.Actor, req *ApplyLicenseRequest) (*LicenseDecision, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	if actor.Role != models.UserTypeSecondaryCreator && actor.Role != models.UserTypeCreator {
		return nil, apperrors.Permission("only secondary creators and creators can apply for licenses")
	}

	var (
		decision LicenseDecision
		box      outbox
	)
	now := time.Now()
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		ipAsset, err := tx.IPAssets().GetForUpdate(ctx, req.IPAssetID)
		if err != nil {
			return err
		}
		terms, err := tx.LicenseTerms().Get(ctx, req.LicenseTermsID)
		if err != nil {
			return err
		}
		if terms.IPAssetID != ipAsset.ID {
			return apperrors.ValidationFields("invalid input", []apperrors.FieldError{{
				Field:   "license_terms_id",
				Message: "License terms do not belong to this IP asset",
			}})
		}
		if ipAsset.Status != models.AssetStatusActive {
			return apperrors.ConflictState("IP asset is not open for licensing", string(ipAsset.Status))
		}
		if !terms.IsActive {
			return apperrors.ConflictState("license terms are no longer offered", "inactive")
		}
		if ipAsset.CreatorID == actor.ID {
			return apperrors.Permission("cannot apply for license on your own IP asset")
		}

		open, err := tx.Applications().ListOpen(ctx, ipAsset.ID, actor.ID)
		if err != nil {
			return err
		}
		for _, existing := range open {
			if existing.Status == models.ApplicationStatusApproved && existing.IsActive(now) {
				return apperrors.ConflictState("you already have an approved license for this IP asset", string(existing.Status))
			}
			if existing.Status == models.ApplicationStatusPending {
				return apperrors.ConflictState("you already have a pending application for this IP asset", string(existing.Status))
			}
		}
		if err := s.checkLicenseLimit(ctx, tx, terms); err != nil {
			return err
		}

		app := models.LicenseApplication{
			BaseModel:       models.NewBase(now),
			IPAssetID:       ipAsset.ID,
			ApplicantID:     actor.ID,
			LicenseTermsID:  terms.ID,
			ApplicationData: applicationData(req, now),
			Status:          models.ApplicationStatusPending,
		}
		box.add(event.LicenseSubmitted, licenseEvent(app, ipAsset, actor.ID, ""))

		if terms.AutoApprove {
			fee, err := s.approveTx(ctx, tx, &app, &ipAsset, terms, models.SystemActorID, now)
			if err != nil {
				return err
			}
			decision.Fee = fee
			box.add(event.LicenseApproved, licenseEvent(app, ipAsset, models.SystemActorID, ""))
		}
		if err := tx.Applications().Create(ctx, &app); err != nil {
			return err
		}
		if decision.Fee != nil {
			if err := tx.Transactions().Create(ctx, decision.Fee); err != nil {
				return err
			}
		}

		ipAsset.ApplicationCount++
		if err := tx.IPAssets().Update(ctx, &ipAsset); err != nil {
			return err
		}
		decision.Application = app
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.licenseTransition(string(decision.Application.Status))
	s.logger.WithFields(logrus.Fields{
		"application_id": decision.Application.ID,
		"ip_asset_id":    decision.Application.IPAssetID,
		"applicant_id":   actor.ID,
		"status":         decision.Application.Status,
	}).Info("license application submitted")
	box.flush(s.events, s.logger)
	return &decision, nil
}

// Approve moves a pending application to approved. Only the asset owner may approve.
func (s *LicenseService) Approve(ctx context.Context, actor models.Actor, applicationID uuid.UUID) (*LicenseDecision, error) {
	var (
		decision LicenseDecision
		box      outbox
	)
	now := time.Now()
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		app, ipAsset, err := s.loadForTransition(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		if ipAsset.CreatorID != actor.ID {
			return apperrors.Permission("only the IP owner can approve this application")
		}
		if app.Status != models.ApplicationStatusPending {
			return apperrors.ConflictState("application cannot be approved", string(app.Status))
		}
		terms, err := tx.LicenseTerms().Get(ctx, app.LicenseTermsID)
		if err != nil {
			return err
		}
		if err := s.checkLicenseLimit(ctx, tx, terms); err != nil {
			return err
		}

		fee, err := s.approveTx(ctx, tx, &app, &ipAsset, terms, actor.ID, now)
		if err != nil {
			return err
		}
		if err := tx.Applications().Update(ctx, &app); err != nil {
			return err
		}
		if fee != nil {
			if err := tx.Transactions().Create(ctx, fee); err != nil {
				return err
			}
		}
		if err := tx.IPAssets().Update(ctx, &ipAsset); err != nil {
			return err
		}

		decision.Application = app
		decision.Fee = fee
		box.add(event.LicenseApproved, licenseEvent(app, ipAsset, actor.ID, ""))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.licenseTransition(string(models.ApplicationStatusApproved))
	s.logger.WithFields(logrus.Fields{
		"application_id": applicationID,
		"approved_by":    actor.ID,
	}).Info("license application approved")
	box.flush(s.events, s.logger)
	return &decision, nil
}

// approveTx sets the approval fields on app and bumps the asset's license
// counter. It returns the pending license fee transaction when the terms
// carry a base fee; the caller persists all three.
func (s *LicenseService) approveTx(ctx context.Context, tx repository.Tx, app *models.LicenseApplication, ipAsset *models.IPAsset, terms models.LicenseTerms, approver uuid.UUID, now time.Time) (*models.Transaction, error) {
	expiresAt, err := licenseExpiry(terms.Duration, now)
	if err != nil {
		return nil, err
	}
	app.Status = models.ApplicationStatusApproved
	app.ApprovedAt = &now
	app.ApprovedBy = &approver
	app.ExpiresAt = expiresAt
	ipAsset.ActiveLicenseCount++

	if !terms.BaseFee.IsPositive() {
		return nil, nil
	}
	shares, err := revenue.DistributeLicenseFee(terms.BaseFee, s.platformFeePercent)
	if err != nil {
		return nil, err
	}
	if err := shares.Verify(); err != nil {
		return nil, err
	}
	licenseID := app.ID
	return &models.Transaction{
		BaseModel:       models.NewBase(now),
		TransactionType: models.TransactionTypeLicenseFee,
		BuyerID:         app.ApplicantID,
		SellerID:        ipAsset.CreatorID,
		LicenseID:       &licenseID,
		Quantity:        1,
		Amount:          shares.Gross,
		PlatformFee:     shares.Platform,
		RevenueShares:   shares.Map(),
		Status:          models.TransactionStatusPending,
	}, nil
}

// Reject closes a pending application. A reason is mandatory.
func (s *LicenseService) Reject(ctx context.Context, actor models.Actor, applicationID uuid.UUID, req *RejectLicenseRequest) (*LicenseDecision, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var (
		decision LicenseDecision
		box      outbox
	)
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		app, ipAsset, err := s.loadForTransition(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		if ipAsset.CreatorID != actor.ID {
			return apperrors.Permission("only the IP owner can reject this application")
		}
		if app.Status != models.ApplicationStatusPending {
			return apperrors.ConflictState("application cannot be rejected", string(app.Status))
		}

		app.Status = models.ApplicationStatusRejected
		app.RejectionReason = req.Reason
		if err := tx.Applications().Update(ctx, &app); err != nil {
			return err
		}

		decision.Application = app
		box.add(event.LicenseRejected, licenseEvent(app, ipAsset, actor.ID, req.Reason))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.licenseTransition(string(models.ApplicationStatusRejected))
	s.logger.WithField("application_id", applicationID).Info("license application rejected")
	box.flush(s.events, s.logger)
	return &decision, nil
}

// Revoke withdraws an approved license and deactivates every authorization
// issued under it in the same unit of work.
func (s *LicenseService) Revoke(ctx context.Context, actor models.Actor, applicationID uuid.UUID, req *RevokeLicenseRequest) (*LicenseDecision, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var (
		decision LicenseDecision
		box      outbox
	)
	now := time.Now()
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		app, ipAsset, err := s.loadForTransition(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		if ipAsset.CreatorID != actor.ID && !actor.IsAdmin() {
			return apperrors.Permission("only the IP owner or an admin can revoke this license")
		}
		if app.Status != models.ApplicationStatusApproved {
			return apperrors.ConflictState("license cannot be revoked", string(app.Status))
		}

		revokedBy := actor.ID
		app.Status = models.ApplicationStatusRevoked
		app.RevokedAt = &now
		app.RevokedBy = &revokedBy
		app.RevocationReason = req.Reason
		if err := tx.Applications().Update(ctx, &app); err != nil {
			return err
		}

		if ipAsset.ActiveLicenseCount > 0 {
			ipAsset.ActiveLicenseCount--
		}
		if err := tx.IPAssets().Update(ctx, &ipAsset); err != nil {
			return err
		}

		chains, err := tx.Chains().ListActiveByLicense(ctx, app.ID)
		if err != nil {
			return err
		}
		reason := "license revoked: " + req.Reason
		for i := range chains {
			if err := s.authorizationService.deactivateTx(ctx, tx, &chains[i], reason, now); err != nil {
				return err
			}
			box.add(event.AuthorizationDeactivated, authorizationEvent(chains[i], reason))
		}

		decision.Application = app
		decision.Deactivated = chains
		box.add(event.LicenseRevoked, licenseEvent(app, ipAsset, actor.ID, req.Reason))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.licenseTransition(string(models.ApplicationStatusRevoked))
	s.logger.WithFields(logrus.Fields{
		"application_id":     applicationID,
		"revoked_by":         actor.ID,
		"chains_deactivated": len(decision.Deactivated),
	}).Info("license revoked")
	box.flush(s.events, s.logger)
	return &decision, nil
}

// Expire ends a pending or approved application. Authorizations issued under
// it stay recorded but stop verifying because the license is no longer approved.
func (s *LicenseService) Expire(ctx context.Context, applicationID uuid.UUID) (*LicenseDecision, error) {
	var (
		decision LicenseDecision
		box      outbox
	)
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		app, ipAsset, err := s.loadForTransition(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		if app.Status.Terminal() {
			return apperrors.ConflictState("application cannot expire", string(app.Status))
		}

		if app.Status == models.ApplicationStatusApproved && ipAsset.ActiveLicenseCount > 0 {
			ipAsset.ActiveLicenseCount--
			if err := tx.IPAssets().Update(ctx, &ipAsset); err != nil {
				return err
			}
		}
		app.Status = models.ApplicationStatusExpired
		if err := tx.Applications().Update(ctx, &app); err != nil {
			return err
		}

		decision.Application = app
		box.add(event.LicenseExpired, licenseEvent(app, ipAsset, models.SystemActorID, ""))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.licenseTransition(string(models.ApplicationStatusExpired))
	box.flush(s.events, s.logger)
	return &decision, nil
}

// ExpireDue expires every open application whose expiry has passed at now and
// returns how many were expired. Applications that changed state meanwhile
// are skipped.
func (s *LicenseService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	var due []models.LicenseApplication
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		var err error
		due, err = tx.Applications().ListDue(ctx, now)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list due licenses: %w", err)
	}

	expired := 0
	for _, app := range due {
		if _, err := s.Expire(ctx, app.ID); err != nil {
			if errors.Is(err, apperrors.ErrConflict) {
				continue
			}
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		s.logger.WithField("count", expired).Info("expired licenses")
	}
	return expired, nil
}

// GetApplication is visible to the applicant, the asset owner and admins.
func (s *LicenseService) GetApplication(ctx context.Context, actor models.Actor, applicationID uuid.UUID) (*models.LicenseApplication, error) {
	var app models.LicenseApplication
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		var err error
		app, err = tx.Applications().Get(ctx, applicationID)
		if err != nil {
			return err
		}
		if actor.IsAdmin() || app.ApplicantID == actor.ID {
			return nil
		}
		ipAsset, err := tx.IPAssets().Get(ctx, app.IPAssetID)
		if err != nil {
			return err
		}
		if ipAsset.CreatorID != actor.ID {
			return apperrors.Permission("not allowed to view this application")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *LicenseService) ListApplications(ctx context.Context, actor models.Actor, params LicenseListParams) (*catalog.Page[models.LicenseApplication], error) {
	var apps []models.LicenseApplication
	err := s.store.Tx(ctx, func(tx repository.Tx) error {
		filter := repository.ApplicationFilter{Status: params.Status}

		if !actor.IsAdmin() || params.Scope != "" {
			if params.Scope == "" || params.Scope == "applicant" {
				applicantID := actor.ID
				filter.ApplicantID = &applicantID
			}
			if params.Scope == "" || params.Scope == "owner" {
				creatorID := actor.ID
				owned, err := tx.IPAssets().List(ctx, repository.AssetFilter{CreatorID: &creatorID})
				if err != nil {
					return err
				}
				for _, a := range owned {
					filter.AssetIDs = append(filter.AssetIDs, a.ID)
				}
				if params.Scope == "owner" && len(filter.AssetIDs) == 0 {
					return nil
				}
			}
		}

		var err error
		apps, err = tx.Applications().List(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}

	page, err := catalog.Query(apps, catalog.Filter{}, params.Sort, params.Page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *LicenseService) loadForTransition(ctx context.Context, tx repository.Tx, applicationID uuid.UUID) (models.LicenseApplication, models.IPAsset, error) {
	app, err := tx.Applications().GetForUpdate(ctx, applicationID)
	if err != nil {
		return app, models.IPAsset{}, err
	}
	ipAsset, err := tx.IPAssets().GetForUpdate(ctx, app.IPAssetID)
	return app, ipAsset, err
}

func (s *LicenseService) checkLicenseLimit(ctx context.Context, tx repository.Tx, terms models.LicenseTerms) error {
	if terms.MaxLicenses <= 0 {
		return nil
	}
	approved, err := tx.Applications().CountApproved(ctx, terms.ID)
	if err != nil {
		return fmt.Errorf("failed to check license count: %w", err)
	}
	if approved >= int64(terms.MaxLicenses) {
		return apperrors.Conflict("license limit reached for this license terms")
	}
	return nil
}

// licenseExpiry maps a terms duration ("perpetual", "30d", "6m", "2y") onto an
// expiry time. Perpetual licenses never expire.
func licenseExpiry(duration string, from time.Time) (*time.Time, error) {
	duration = strings.TrimSpace(strings.ToLower(duration))
	if duration == "" || duration == "perpetual" {
		return nil, nil
	}
	n, err := strconv.Atoi(duration[:len(duration)-1])
	if err != nil || n <= 0 {
		return nil, apperrors.Validation("invalid license duration %q", duration)
	}
	var at time.Time
	switch duration[len(duration)-1] {
	case 'd':
		at = from.AddDate(0, 0, n)
	case 'm':
		at = from.AddDate(0, n, 0)
	case 'y':
		at = from.AddDate(n, 0, 0)
	default:
		return nil, apperrors.Validation("invalid license duration %q", duration)
	}
	return &at, nil
}

func applicationData(req *ApplyLicenseRequest, now time.Time) models.JSONB {
	data := models.JSONB{}
	for k, v := range req.ApplicationData {
		data[k] = v
	}
	if req.IntendedUse != "" {
		data["intended_use"] = req.IntendedUse
	}
	if len(req.PortfolioLinks) > 0 {
		links := make([]interface{}, len(req.PortfolioLinks))
		for i, l := range req.PortfolioLinks {
			links[i] = l
		}
		data["portfolio_links"] = links
	}
	if req.BusinessDescription != "" {
		data["business_description"] = req.BusinessDescription
	}
	if req.Message != "" {
		data["message"] = req.Message
	}
	data["applied_at"] = now.UTC().Format(time.RFC3339)
	return data
}

func licenseEvent(app models.LicenseApplication, ipAsset models.IPAsset, actorID uuid.UUID, reason string) event.LicenseEvent {
	return event.LicenseEvent{
		ApplicationID: app.ID,
		IPAssetID:     app.IPAssetID,
		ApplicantID:   app.ApplicantID,
		OwnerID:       ipAsset.CreatorID,
		ActorID:       actorID,
		Status:        string(app.Status),
		Reason:        reason,
	}
}
