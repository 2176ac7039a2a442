// internal/repository/gorm.go
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/imi-licensing/internal/apperrors"
	"github.com/javajoker/imi-licensing/internal/models"
)

// GormStore persists entities through gorm. Works on PostgreSQL and SQLite.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Tx(ctx context.Context, fn func(tx Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db})
	})
	return classify("transaction", "transaction", "", err)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) IPAssets() IPAssetRepository { return gormAssets{t} }
func (t *gormTx) LicenseTerms() LicenseTermsRepository { return gormTerms{t} }
func (t *gormTx) Applications() ApplicationRepository { return gormApplications{t} }
func (t *gormTx) Products() ProductRepository { return gormProducts{t} }
func (t *gormTx) Chains() ChainRepository { return gormChains{t} }
func (t *gormTx) Transactions() TransactionRepository { return gormTransactions{t} }

func (t *gormTx) with(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx)
}

// locking adds FOR UPDATE where the dialect supports row locks. SQLite
// serializes writers on its own.
func (t *gormTx) locking(ctx context.Context) *gorm.DB {
	db := t.with(ctx)
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func first[T any](db *gorm.DB, resource string, id interface{}, query string, args ...interface{}) (T, error) {
	var out T
	err := db.Where(query, args...).First(&out).Error
	return out, classify("load "+resource, resource, id, err)
}

func create(db *gorm.DB, resource string, value interface{}) error {
	return classify("create "+resource, resource, "", db.Create(value).Error)
}

func update(db *gorm.DB, resource string, id uuid.UUID, value interface{}) error {
	res := db.Model(value).Select("*").Updates(value)
	if res.Error != nil {
		return classify("update "+resource, resource, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound(resource, id)
	}
	return nil
}

type gormAssets struct{ t *gormTx }

func (r gormAssets) Create(ctx context.Context, a *models.IPAsset) error {
	return create(r.t.with(ctx), "ip asset", a)
}

func (r gormAssets) Get(ctx context.Context, id uuid.UUID) (models.IPAsset, error) {
	return first[models.IPAsset](r.t.with(ctx), "ip asset", id, "id = ?", id)
}

func (r gormAssets) GetForUpdate(ctx context.Context, id uuid.UUID) (models.IPAsset, error) {
	return first[models.IPAsset](r.t.locking(ctx), "ip asset", id, "id = ?", id)
}

func (r gormAssets) Update(ctx context.Context, a *models.IPAsset) error {
	return update(r.t.with(ctx), "ip asset", a.ID, a)
}

func (r gormAssets) List(ctx context.Context, f AssetFilter) ([]models.IPAsset, error) {
	q := r.t.with(ctx).Model(&models.IPAsset{})
	if f.CreatorID != nil {
		q = q.Where("creator_id = ?", *f.CreatorID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var assets []models.IPAsset
	err := q.Order("created_at ASC, id ASC").Find(&assets).Error
	return assets, classify("list ip assets", "ip asset", "", err)
}

type gormTerms struct{ t *gormTx }

func (r gormTerms) Create(ctx context.Context, lt *models.LicenseTerms) error {
	return create(r.t.with(ctx), "license terms", lt)
}

func (r gormTerms) Get(ctx context.Context, id uuid.UUID) (models.LicenseTerms, error) {
	return first[models.LicenseTerms](r.t.with(ctx), "license terms", id, "id = ?", id)
}

func (r gormTerms) ListByAssets(ctx context.Context, assetIDs []uuid.UUID) ([]models.LicenseTerms, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}
	var terms []models.LicenseTerms
	err := r.t.with(ctx).Where("ip_asset_id IN ?", assetIDs).Order("created_at ASC, id ASC").Find(&terms).Error
	return terms, classify("list license terms", "license terms", "", err)
}

type gormApplications struct{ t *gormTx }

func (r gormApplications) Create(ctx context.Context, app *models.LicenseApplication) error {
	return create(r.t.with(ctx), "license application", app)
}

func (r gormApplications) Get(ctx context.Context, id uuid.UUID) (models.LicenseApplication, error) {
	return first[models.LicenseApplication](r.t.with(ctx), "license application", id, "id = ?", id)
}

func (r gormApplications) GetForUpdate(ctx context.Context, id uuid.UUID) (models.LicenseApplication, error) {
	return first[models.LicenseApplication](r.t.locking(ctx), "license application", id, "id = ?", id)
}

func (r gormApplications) Update(ctx context.Context, app *models.LicenseApplication) error {
	prev := app.Version
	next := app.Clone()
	next.Version = prev + 1

	res := r.t.with(ctx).Model(&next).Where("version = ?", prev).Select("*").Updates(&next)
	if res.Error != nil {
		return classify("update license application", "license application", app.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := r.Get(ctx, app.ID)
		if err != nil {
			return err
		}
		return apperrors.ConflictState("license application was modified concurrently", string(current.Status))
	}
	*app = next
	return nil
}

func (r gormApplications) List(ctx context.Context, f ApplicationFilter) ([]models.LicenseApplication, error) {
	q := r.t.with(ctx).Model(&models.LicenseApplication{})
	switch {
	case f.ApplicantID != nil && f.AssetIDs != nil:
		q = q.Where("applicant_id = ? OR ip_asset_id IN ?", *f.ApplicantID, f.AssetIDs)
	case f.ApplicantID != nil:
		q = q.Where("applicant_id = ?", *f.ApplicantID)
	case f.AssetIDs != nil:
		q = q.Where("ip_asset_id IN ?", f.AssetIDs)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var apps []models.LicenseApplication
	err := q.Order("created_at ASC, id ASC").Find(&apps).Error
	return apps, classify("list license applications", "license application", "", err)
}

func (r gormApplications) CountApproved(ctx context.Context, termsID uuid.UUID) (int64, error) {
	var n int64
	err := r.t.with(ctx).Model(&models.LicenseApplication{}).
		Where("license_terms_id = ? AND status = ?", termsID, models.ApplicationStatusApproved).
		Count(&n).Error
	return n, classify("count license applications", "license application", "", err)
}

var openStatuses = []models.ApplicationStatus{models.ApplicationStatusPending, models.ApplicationStatusApproved}

func (r gormApplications) ListOpen(ctx context.Context, assetID, applicantID uuid.UUID) ([]models.LicenseApplication, error) {
	var apps []models.LicenseApplication
	err := r.t.with(ctx).
		Where("ip_asset_id = ? AND applicant_id = ? AND status IN ?", assetID, applicantID, openStatuses).
		Find(&apps).Error
	return apps, classify("list open license applications", "license application", "", err)
}

func (r gormApplications) ListDue(ctx context.Context, now time.Time) ([]models.LicenseApplication, error) {
	var apps []models.LicenseApplication
	err := r.t.with(ctx).
		Where("status IN ? AND expires_at IS NOT NULL", openStatuses).
		Order("created_at ASC, id ASC").
		Find(&apps).Error
	if err != nil {
		return nil, classify("list due license applications", "license application", "", err)
	}
	// time comparison stays in Go; SQLite keeps timestamps as text
	due := apps[:0]
	for _, a := range apps {
		if !a.ExpiresAt.After(now) {
			due = append(due, a)
		}
	}
	return due, nil
}

type gormProducts struct{ t *gormTx }

func (r gormProducts) Create(ctx context.Context, p *models.Product) error {
	return create(r.t.with(ctx), "product", p)
}

func (r gormProducts) Get(ctx context.Context, id uuid.UUID) (models.Product, error) {
	return first[models.Product](r.t.with(ctx), "product", id, "id = ?", id)
}

func (r gormProducts) GetForUpdate(ctx context.Context, id uuid.UUID) (models.Product, error) {
	return first[models.Product](r.t.locking(ctx), "product", id, "id = ?", id)
}

func (r gormProducts) Update(ctx context.Context, p *models.Product) error {
	return update(r.t.with(ctx), "product", p.ID, p)
}

func (r gormProducts) List(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	q := r.t.with(ctx).Model(&models.Product{})
	if f.CreatorID != nil {
		q = q.Where("creator_id = ?", *f.CreatorID)
	}
	if f.LicenseID != nil {
		q = q.Where("license_id = ?", *f.LicenseID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var products []models.Product
	err := q.Order("created_at ASC, id ASC").Find(&products).Error
	return products, classify("list products", "product", "", err)
}

type gormChains struct{ t *gormTx }

func (r gormChains) Create(ctx context.Context, c *models.AuthorizationChain) error {
	return create(r.t.with(ctx), "authorization chain", c)
}

func (r gormChains) Update(ctx context.Context, c *models.AuthorizationChain) error {
	return update(r.t.with(ctx), "authorization chain", c.ID, c)
}

func (r gormChains) GetByCode(ctx context.Context, code string) (models.AuthorizationChain, error) {
	return first[models.AuthorizationChain](r.t.with(ctx), "authorization chain", code, "verification_code = ?", code)
}

func (r gormChains) GetActiveByProduct(ctx context.Context, productID uuid.UUID) (models.AuthorizationChain, error) {
	return first[models.AuthorizationChain](r.t.locking(ctx), "active authorization chain for product", productID,
		"product_id = ? AND is_active = ?", productID, true)
}

func (r gormChains) CodeExists(ctx context.Context, code string) (bool, error) {
	var n int64
	err := r.t.with(ctx).Unscoped().Model(&models.AuthorizationChain{}).Where("verification_code = ?", code).Count(&n).Error
	return n > 0, classify("check verification code", "authorization chain", code, err)
}

func (r gormChains) CountByProduct(ctx context.Context, productID uuid.UUID) (int64, error) {
	var n int64
	err := r.t.with(ctx).Unscoped().Model(&models.AuthorizationChain{}).Where("product_id = ?", productID).Count(&n).Error
	return n, classify("count authorization chains", "authorization chain", productID, err)
}

func (r gormChains) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.AuthorizationChain, error) {
	var chains []models.AuthorizationChain
	err := r.t.with(ctx).Where("product_id = ?", productID).Order("created_at DESC, sequence DESC").Find(&chains).Error
	return chains, classify("list authorization chains", "authorization chain", productID, err)
}

func (r gormChains) ListActiveByLicense(ctx context.Context, licenseID uuid.UUID) ([]models.AuthorizationChain, error) {
	var chains []models.AuthorizationChain
	err := r.t.locking(ctx).Where("license_id = ? AND is_active = ?", licenseID, true).Order("created_at ASC, id ASC").Find(&chains).Error
	return chains, classify("list authorization chains", "authorization chain", licenseID, err)
}

type gormTransactions struct{ t *gormTx }

func (r gormTransactions) Create(ctx context.Context, txn *models.Transaction) error {
	return create(r.t.with(ctx), "transaction", txn)
}

func (r gormTransactions) Get(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	return first[models.Transaction](r.t.with(ctx), "transaction", id, "id = ?", id)
}

func (r gormTransactions) GetForUpdate(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	return first[models.Transaction](r.t.locking(ctx), "transaction", id, "id = ?", id)
}

func (r gormTransactions) Update(ctx context.Context, txn *models.Transaction) error {
	return update(r.t.with(ctx), "transaction", txn.ID, txn)
}

func (r gormTransactions) List(ctx context.Context, f TransactionFilter) ([]models.Transaction, error) {
	q := r.t.with(ctx).Model(&models.Transaction{})
	if f.PartyID != nil {
		q = q.Where("buyer_id = ? OR seller_id = ?", *f.PartyID, *f.PartyID)
	}
	if f.Type != "" {
		q = q.Where("transaction_type = ?", f.Type)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var txns []models.Transaction
	err := q.Order("created_at ASC, id ASC").Find(&txns).Error
	return txns, classify("list transactions", "transaction", "", err)
}
