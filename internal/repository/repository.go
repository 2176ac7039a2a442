// internal/repository/repository.go
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/imi-licensing/internal/models"
)

// Store runs units of work. Every write made through tx is committed when fn
// returns nil and discarded otherwise.
type Store interface {
	Tx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

type Tx interface {
	IPAssets() IPAssetRepository
	LicenseTerms() LicenseTermsRepository
	Applications() ApplicationRepository
	Products() ProductRepository
	Chains() ChainRepository
	Transactions() TransactionRepository
}

type AssetFilter struct {
	CreatorID *uuid.UUID
	Status    models.AssetStatus
}

type IPAssetRepository interface {
	Create(ctx context.Context, asset *models.IPAsset) error
	Get(ctx context.Context, id uuid.UUID) (models.IPAsset, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (models.IPAsset, error)
	Update(ctx context.Context, asset *models.IPAsset) error
	List(ctx context.Context, filter AssetFilter) ([]models.IPAsset, error)
}

type LicenseTermsRepository interface {
	Create(ctx context.Context, terms *models.LicenseTerms) error
	Get(ctx context.Context, id uuid.UUID) (models.LicenseTerms, error)
	ListByAssets(ctx context.Context, assetIDs []uuid.UUID) ([]models.LicenseTerms, error)
}

// ApplicationFilter matches applications by ApplicantID or by AssetIDs; when
// both are set an application matching either is returned.
type ApplicationFilter struct {
	ApplicantID *uuid.UUID
	AssetIDs    []uuid.UUID
	Status      models.ApplicationStatus
}

type ApplicationRepository interface {
	Create(ctx context.Context, app *models.LicenseApplication) error
	Get(ctx context.Context, id uuid.UUID) (models.LicenseApplication, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (models.LicenseApplication, error)
	// Update writes app only if the stored version still equals app.Version,
	// then advances app.Version. A stale write fails with a ConflictError.
	Update(ctx context.Context, app *models.LicenseApplication) error
	List(ctx context.Context, filter ApplicationFilter) ([]models.LicenseApplication, error)
	CountApproved(ctx context.Context, termsID uuid.UUID) (int64, error)
	// ListOpen returns pending or approved applications by applicant for an asset.
	ListOpen(ctx context.Context, assetID, applicantID uuid.UUID) ([]models.LicenseApplication, error)
	// ListDue returns pending or approved applications expiring at or before now.
	ListDue(ctx context.Context, now time.Time) ([]models.LicenseApplication, error)
}

type ProductFilter struct {
	CreatorID *uuid.UUID
	LicenseID *uuid.UUID
	Status    models.ProductStatus
}

type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	Get(ctx context.Context, id uuid.UUID) (models.Product, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (models.Product, error)
	Update(ctx context.Context, product *models.Product) error
	List(ctx context.Context, filter ProductFilter) ([]models.Product, error)
}

type ChainRepository interface {
	// Create fails with a ConflictError when the code is taken or the product
	// already has an active chain.
	Create(ctx context.Context, chain *models.AuthorizationChain) error
	Update(ctx context.Context, chain *models.AuthorizationChain) error
	GetByCode(ctx context.Context, code string) (models.AuthorizationChain, error)
	GetActiveByProduct(ctx context.Context, productID uuid.UUID) (models.AuthorizationChain, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	CountByProduct(ctx context.Context, productID uuid.UUID) (int64, error)
	// ListByProduct returns every chain of a product, newest first.
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.AuthorizationChain, error)
	ListActiveByLicense(ctx context.Context, licenseID uuid.UUID) ([]models.AuthorizationChain, error)
}

type TransactionFilter struct {
	PartyID *uuid.UUID // buyer or seller
	Type    models.TransactionType
	Status  models.TransactionStatus
}

type TransactionRepository interface {
	Create(ctx context.Context, txn *models.Transaction) error
	Get(ctx context.Context, id uuid.UUID) (models.Transaction, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (models.Transaction, error)
	Update(ctx context.Context, txn *models.Transaction) error
	List(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error)
}
