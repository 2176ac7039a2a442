// internal/repository/memory.go
package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/imi-licensing/internal/apperrors"
	"github.com/javajoker/imi-licensing/internal/models"
)

type cloner[T any] interface {
	Clone() T
}

type table[T cloner[T]] struct {
	rows  map[uuid.UUID]T
	order []uuid.UUID
}

func newTable[T cloner[T]]() *table[T] {
	return &table[T]{rows: make(map[uuid.UUID]T)}
}

// staged buffers the writes of one transaction on top of a table.
type staged[T cloner[T]] struct {
	base   *table[T]
	writes map[uuid.UUID]T
	added  []uuid.UUID
}

func stage[T cloner[T]](base *table[T]) *staged[T] {
	return &staged[T]{base: base, writes: make(map[uuid.UUID]T)}
}

func (s *staged[T]) get(id uuid.UUID) (T, bool) {
	if v, ok := s.writes[id]; ok {
		return v.Clone(), true
	}
	v, ok := s.base.rows[id]
	if !ok {
		return v, false
	}
	return v.Clone(), true
}

func (s *staged[T]) exists(id uuid.UUID) bool {
	_, ok := s.get(id)
	return ok
}

func (s *staged[T]) put(id uuid.UUID, v T) {
	if !s.exists(id) {
		s.added = append(s.added, id)
	}
	s.writes[id] = v.Clone()
}

// scan visits rows in insertion order until fn returns false.
func (s *staged[T]) scan(fn func(T) bool) {
	visit := func(id uuid.UUID) bool {
		v, _ := s.get(id)
		return fn(v)
	}
	for _, id := range s.base.order {
		if !visit(id) {
			return
		}
	}
	for _, id := range s.added {
		if !visit(id) {
			return
		}
	}
}

func (s *staged[T]) filter(keep func(T) bool) []T {
	var out []T
	s.scan(func(v T) bool {
		if keep(v) {
			out = append(out, v)
		}
		return true
	})
	return out
}

func (s *staged[T]) commit() {
	for id, v := range s.writes {
		s.base.rows[id] = v
	}
	s.base.order = append(s.base.order, s.added...)
}

// MemoryStore keeps everything in process memory. Transactions are serialized.
type MemoryStore struct {
	mu           sync.Mutex
	assets       *table[models.IPAsset]
	terms        *table[models.LicenseTerms]
	applications *table[models.LicenseApplication]
	products     *table[models.Product]
	chains       *table[models.AuthorizationChain]
	transactions *table[models.Transaction]
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:       newTable[models.IPAsset](),
		terms:        newTable[models.LicenseTerms](),
		applications: newTable[models.LicenseApplication](),
		products:     newTable[models.Product](),
		chains:       newTable[models.AuthorizationChain](),
		transactions: newTable[models.Transaction](),
		now:          time.Now,
	}
}

func (s *MemoryStore) Tx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Store("begin", true, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		assets:       stage(s.assets),
		terms:        stage(s.terms),
		applications: stage(s.applications),
		products:     stage(s.products),
		chains:       stage(s.chains),
		transactions: stage(s.transactions),
		now:          s.now,
	}
	if err := fn(tx); err != nil {
		return err
	}

	tx.assets.commit()
	tx.terms.commit()
	tx.applications.commit()
	tx.products.commit()
	tx.chains.commit()
	tx.transactions.commit()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

type memoryTx struct {
	assets       *staged[models.IPAsset]
	terms        *staged[models.LicenseTerms]
	applications *staged[models.LicenseApplication]
	products     *staged[models.Product]
	chains       *staged[models.AuthorizationChain]
	transactions *staged[models.Transaction]
	now          func() time.Time
}

func (t *memoryTx) IPAssets() IPAssetRepository { return memAssets{t} }
func (t *memoryTx) LicenseTerms() LicenseTermsRepository { return memTerms{t} }
func (t *memoryTx) Applications() ApplicationRepository { return memApplications{t} }
func (t *memoryTx) Products() ProductRepository { return memProducts{t} }
func (t *memoryTx) Chains() ChainRepository { return memChains{t} }
func (t *memoryTx) Transactions() TransactionRepository { return memTransactions{t} }

func (t *memoryTx) stamp(b *models.BaseModel, creating bool) {
	now := t.now()
	if creating {
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
	}
	b.UpdatedAt = now
}

func createRow[T cloner[T]](s *staged[T], t *memoryTx, b *models.BaseModel, v func() T, resource string) error {
	t.stamp(b, true)
	if s.exists(b.ID) {
		return apperrors.Conflict(resource + " " + b.ID.String() + " already exists")
	}
	s.put(b.ID, v())
	return nil
}

func updateRow[T cloner[T]](s *staged[T], t *memoryTx, b *models.BaseModel, v func() T, resource string) error {
	if !s.exists(b.ID) {
		return apperrors.NotFound(resource, b.ID)
	}
	t.stamp(b, false)
	s.put(b.ID, v())
	return nil
}

func getRow[T cloner[T]](s *staged[T], id uuid.UUID, resource string) (T, error) {
	v, ok := s.get(id)
	if !ok {
		return v, apperrors.NotFound(resource, id)
	}
	return v, nil
}

type memAssets struct{ t *memoryTx }

func (r memAssets) Create(_ context.Context, a *models.IPAsset) error {
	return createRow(r.t.assets, r.t, &a.BaseModel, func() models.IPAsset { return *a }, "ip asset")
}

func (r memAssets) Get(_ context.Context, id uuid.UUID) (models.IPAsset, error) {
	return getRow(r.t.assets, id, "ip asset")
}

func (r memAssets) GetForUpdate(ctx context.Context, id uuid.UUID) (models.IPAsset, error) {
	return r.Get(ctx, id)
}

func (r memAssets) Update(_ context.Context, a *models.IPAsset) error {
	return updateRow(r.t.assets, r.t, &a.BaseModel, func() models.IPAsset { return *a }, "ip asset")
}

func (r memAssets) List(_ context.Context, f AssetFilter) ([]models.IPAsset, error) {
	return r.t.assets.filter(func(a models.IPAsset) bool {
		if f.CreatorID != nil && a.CreatorID != *f.CreatorID {
			return false
		}
		return f.Status == "" || a.Status == f.Status
	}), nil
}

type memTerms struct{ t *memoryTx }

func (r memTerms) Create(_ context.Context, lt *models.LicenseTerms) error {
	return createRow(r.t.terms, r.t, &lt.BaseModel, func() models.LicenseTerms { return *lt }, "license terms")
}

func (r memTerms) Get(_ context.Context, id uuid.UUID) (models.LicenseTerms, error) {
	return getRow(r.t.terms, id, "license terms")
}

func (r memTerms) ListByAssets(_ context.Context, assetIDs []uuid.UUID) ([]models.LicenseTerms, error) {
	return r.t.terms.filter(func(lt models.LicenseTerms) bool {
		return slices.Contains(assetIDs, lt.IPAssetID)
	}), nil
}

type memApplications struct{ t *memoryTx }

func (r memApplications) Create(_ context.Context, app *models.LicenseApplication) error {
	return createRow(r.t.applications, r.t, &app.BaseModel, func() models.LicenseApplication { return *app }, "license application")
}

func (r memApplications) Get(_ context.Context, id uuid.UUID) (models.LicenseApplication, error) {
	return getRow(r.t.applications, id, "license application")
}

func (r memApplications) GetForUpdate(ctx context.Context, id uuid.UUID) (models.LicenseApplication, error) {
	return r.Get(ctx, id)
}

func (r memApplications) Update(_ context.Context, app *models.LicenseApplication) error {
	current, ok := r.t.applications.get(app.ID)
	if !ok {
		return apperrors.NotFound("license application", app.ID)
	}
	if current.Version != app.Version {
		return apperrors.ConflictState("license application was modified concurrently", string(current.Status))
	}
	app.Version++
	r.t.stamp(&app.BaseModel, false)
	r.t.applications.put(app.ID, *app)
	return nil
}

func (r memApplications) List(_ context.Context, f ApplicationFilter) ([]models.LicenseApplication, error) {
	return r.t.applications.filter(func(a models.LicenseApplication) bool {
		if f.ApplicantID != nil && f.AssetIDs != nil {
			if a.ApplicantID != *f.ApplicantID && !slices.Contains(f.AssetIDs, a.IPAssetID) {
				return false
			}
		} else if f.ApplicantID != nil && a.ApplicantID != *f.ApplicantID {
			return false
		} else if f.AssetIDs != nil && !slices.Contains(f.AssetIDs, a.IPAssetID) {
			return false
		}
		return f.Status == "" || a.Status == f.Status
	}), nil
}

func (r memApplications) CountApproved(_ context.Context, termsID uuid.UUID) (int64, error) {
	return int64(len(r.t.applications.filter(func(a models.LicenseApplication) bool {
		return a.LicenseTermsID == termsID && a.Status == models.ApplicationStatusApproved
	}))), nil
}

func (r memApplications) ListOpen(_ context.Context, assetID, applicantID uuid.UUID) ([]models.LicenseApplication, error) {
	return r.t.applications.filter(func(a models.LicenseApplication) bool {
		return a.IPAssetID == assetID && a.ApplicantID == applicantID && isOpen(a.Status)
	}), nil
}

func (r memApplications) ListDue(_ context.Context, now time.Time) ([]models.LicenseApplication, error) {
	return r.t.applications.filter(func(a models.LicenseApplication) bool {
		return isOpen(a.Status) && a.ExpiresAt != nil && !a.ExpiresAt.After(now)
	}), nil
}

func isOpen(s models.ApplicationStatus) bool {
	return s == models.ApplicationStatusPending || s == models.ApplicationStatusApproved
}

type memProducts struct{ t *memoryTx }

func (r memProducts) Create(_ context.Context, p *models.Product) error {
	return createRow(r.t.products, r.t, &p.BaseModel, func() models.Product { return *p }, "product")
}

func (r memProducts) Get(_ context.Context, id uuid.UUID) (models.Product, error) {
	return getRow(r.t.products, id, "product")
}

func (r memProducts) GetForUpdate(ctx context.Context, id uuid.UUID) (models.Product, error) {
	return r.Get(ctx, id)
}

func (r memProducts) Update(_ context.Context, p *models.Product) error {
	return updateRow(r.t.products, r.t, &p.BaseModel, func() models.Product { return *p }, "product")
}

func (r memProducts) List(_ context.Context, f ProductFilter) ([]models.Product, error) {
	return r.t.products.filter(func(p models.Product) bool {
		if f.CreatorID != nil && p.CreatorID != *f.CreatorID {
			return false
		}
		if f.LicenseID != nil && p.LicenseID != *f.LicenseID {
			return false
		}
		return f.Status == "" || p.Status == f.Status
	}), nil
}

type memChains struct{ t *memoryTx }

func (r memChains) checkUnique(c *models.AuthorizationChain) error {
	var err error
	r.t.chains.scan(func(other models.AuthorizationChain) bool {
		if other.ID == c.ID {
			return true
		}
		if other.VerificationCode == c.VerificationCode {
			err = apperrors.Conflict("verification code " + c.VerificationCode + " is already issued")
			return false
		}
		if c.IsActive && other.IsActive && other.ProductID == c.ProductID {
			err = apperrors.Conflict("product " + c.ProductID.String() + " already has an active authorization chain")
			return false
		}
		return true
	})
	return err
}

func (r memChains) Create(_ context.Context, c *models.AuthorizationChain) error {
	if err := r.checkUnique(c); err != nil {
		return err
	}
	return createRow(r.t.chains, r.t, &c.BaseModel, func() models.AuthorizationChain { return *c }, "authorization chain")
}

func (r memChains) Update(_ context.Context, c *models.AuthorizationChain) error {
	if err := r.checkUnique(c); err != nil {
		return err
	}
	return updateRow(r.t.chains, r.t, &c.BaseModel, func() models.AuthorizationChain { return *c }, "authorization chain")
}

func (r memChains) find(keep func(models.AuthorizationChain) bool) (models.AuthorizationChain, bool) {
	var found models.AuthorizationChain
	ok := false
	r.t.chains.scan(func(c models.AuthorizationChain) bool {
		if keep(c) {
			found, ok = c, true
			return false
		}
		return true
	})
	return found, ok
}

func (r memChains) GetByCode(_ context.Context, code string) (models.AuthorizationChain, error) {
	c, ok := r.find(func(c models.AuthorizationChain) bool { return c.VerificationCode == code })
	if !ok {
		return c, apperrors.NotFound("authorization chain", code)
	}
	return c, nil
}

func (r memChains) GetActiveByProduct(_ context.Context, productID uuid.UUID) (models.AuthorizationChain, error) {
	c, ok := r.find(func(c models.AuthorizationChain) bool { return c.ProductID == productID && c.IsActive })
	if !ok {
		return c, apperrors.NotFound("active authorization chain for product", productID)
	}
	return c, nil
}

func (r memChains) CodeExists(_ context.Context, code string) (bool, error) {
	_, ok := r.find(func(c models.AuthorizationChain) bool { return c.VerificationCode == code })
	return ok, nil
}

func (r memChains) CountByProduct(_ context.Context, productID uuid.UUID) (int64, error) {
	return int64(len(r.t.chains.filter(func(c models.AuthorizationChain) bool { return c.ProductID == productID }))), nil
}

func (r memChains) ListByProduct(_ context.Context, productID uuid.UUID) ([]models.AuthorizationChain, error) {
	chains := r.t.chains.filter(func(c models.AuthorizationChain) bool { return c.ProductID == productID })
	slices.Reverse(chains)
	slices.SortStableFunc(chains, func(a, b models.AuthorizationChain) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return chains, nil
}

func (r memChains) ListActiveByLicense(_ context.Context, licenseID uuid.UUID) ([]models.AuthorizationChain, error) {
	return r.t.chains.filter(func(c models.AuthorizationChain) bool {
		return c.LicenseID == licenseID && c.IsActive
	}), nil
}

type memTransactions struct{ t *memoryTx }

func (r memTransactions) Create(_ context.Context, txn *models.Transaction) error {
	return createRow(r.t.transactions, r.t, &txn.BaseModel, func() models.Transaction { return *txn }, "transaction")
}

func (r memTransactions) Get(_ context.Context, id uuid.UUID) (models.Transaction, error) {
	return getRow(r.t.transactions, id, "transaction")
}

func (r memTransactions) GetForUpdate(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	return r.Get(ctx, id)
}

func (r memTransactions) Update(_ context.Context, txn *models.Transaction) error {
	return updateRow(r.t.transactions, r.t, &txn.BaseModel, func() models.Transaction { return *txn }, "transaction")
}

func (r memTransactions) List(_ context.Context, f TransactionFilter) ([]models.Transaction, error) {
	return r.t.transactions.filter(func(txn models.Transaction) bool {
		if f.PartyID != nil && txn.BuyerID != *f.PartyID && txn.SellerID != *f.PartyID {
			return false
		}
		if f.Type != "" && txn.TransactionType != f.Type {
			return false
		}
		return f.Status == "" || txn.Status == f.Status
	}), nil
}
