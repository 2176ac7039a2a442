package services_test

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/imi-licensing/internal/apperrors"
	"github.com/javajoker/imi-licensing/internal/cart"
	"github.com/javajoker/imi-licensing/internal/catalog"
	"github.com/javajoker/imi-licensing/internal/config"
	"github.com/javajoker/imi-licensing/internal/event"
	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/repository"
	"github.com/javajoker/imi-licensing/internal/services"
)

var codePattern = regexp.MustCompile(`^IMI-[0-9A-F]{8}-\d{3}-\d{4}$`)

type WorkflowSuite struct {
	suite.Suite
	ctx   context.Context
	store *repository.MemoryStore

	bus           *event.EventBus
	notifications *services.NotificationService
	ipService     *services.IPService
	licenses      *services.LicenseService
	authorization *services.AuthorizationService
	products      *services.ProductService
	orders        *services.OrderService

	owner    models.Actor
	licensee models.Actor
	buyer    models.Actor
	admin    models.Actor
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) SetupTest() {
	s.ctx = context.Background()

	logger, _ := test.NewNullLogger()
	entry := logrus.NewEntry(logger)
	cfg := config.MarketplaceConfig{
		PlatformFeePercent:     decimal.NewFromInt(10),
		VerificationCodePrefix: "IMI",
		MaxIssueAttempts:       5,
	}

	store := repository.NewMemoryStore()
	s.store = store
	s.bus = event.NewEventBus(nil, entry)
	s.notifications = services.NewNotificationService(entry)
	s.notifications.Subscribe(s.bus)

	blockchain := services.NewBlockchainService(entry)
	s.authorization = services.NewAuthorizationService(store, blockchain, s.bus, nil, cfg, entry)
	s.ipService = services.NewIPService(store, blockchain, entry)
	s.licenses = services.NewLicenseService(store, s.authorization, s.bus, nil, cfg, entry)
	s.products = services.NewProductService(store, s.authorization, s.bus, entry)
	s.orders = services.NewOrderService(store, s.authorization, s.bus, nil, cfg, entry)

	s.owner = models.Actor{ID: uuid.New(), Role: models.UserTypeCreator}
	s.licensee = models.Actor{ID: uuid.New(), Role: models.UserTypeSecondaryCreator}
	s.buyer = models.Actor{ID: uuid.New(), Role: models.UserTypeBuyer}
	s.admin = models.Actor{ID: uuid.New(), Role: models.UserTypeAdmin}
}

func (s *WorkflowSuite) TearDownTest() {
	s.bus.Stop()
}

type termsOption func(*services.CreateLicenseTermsRequest)

func autoApprove(r *services.CreateLicenseTermsRequest) { r.AutoApprove = true }

func baseFee(fee string) termsOption {
	return func(r *services.CreateLicenseTermsRequest) { r.BaseFee = decimal.RequireFromString(fee) }
}

func duration(d string) termsOption {
	return func(r *services.CreateLicenseTermsRequest) { r.Duration = d }
}

func (s *WorkflowSuite) createAsset(title string, opts ...termsOption) (*models.IPAsset, *models.LicenseTerms) {
	asset, err := s.ipService.CreateIPAsset(s.ctx, s.owner, &services.CreateIPAssetRequest{
		Title:       title,
		Description: "Original character art",
		Category:    "art",
		ContentType: "image",
		Tags:        []string{"character"},
	})
	s.Require().NoError(err)

	req := &services.CreateLicenseTermsRequest{
		LicenseType:            models.LicenseTypeStandard,
		RevenueSharePercentage: decimal.NewFromInt(15),
		BaseFee:                decimal.Zero,
	}
	for _, opt := range opts {
		opt(req)
	}
	terms, err := s.ipService.CreateLicenseTerms(s.ctx, s.owner, asset.ID, req)
	s.Require().NoError(err)
	return asset, terms
}

func (s *WorkflowSuite) apply(asset *models.IPAsset, terms *models.LicenseTerms) *services.LicenseDecision {
	decision, err := s.licenses.SubmitApplication(s.ctx, s.licensee, &services.ApplyLicenseRequest{
		IPAssetID:      asset.ID,
		LicenseTermsID: terms.ID,
		IntendedUse:    "T-shirts",
	})
	s.Require().NoError(err)
	return decision
}

func (s *WorkflowSuite) approvedLicense(opts ...termsOption) (*models.IPAsset, models.LicenseApplication) {
	asset, terms := s.createAsset("Dragon", opts...)
	decision := s.apply(asset, terms)
	approved, err := s.licenses.Approve(s.ctx, s.owner, decision.Application.ID)
	s.Require().NoError(err)
	return asset, approved.Application
}

func (s *WorkflowSuite) createProduct(licenseID uuid.UUID, price string, inventory int) *services.ProductDetail {
	detail, err := s.products.CreateProduct(s.ctx, s.licensee, &services.CreateProductRequest{
		LicenseID:      licenseID,
		Title:          "Dragon Tee",
		Category:       "apparel",
		Price:          decimal.RequireFromString(price),
		InventoryCount: inventory,
	})
	s.Require().NoError(err)
	return detail
}

func (s *WorkflowSuite) TestAutoApproveIsRecordedAsSystem() {
	asset, terms := s.createAsset("Auto", autoApprove)

	decision := s.apply(asset, terms)

	app := decision.Application
	s.Equal(models.ApplicationStatusApproved, app.Status)
	s.Require().NotNil(app.ApprovedBy)
	s.Equal(models.SystemActorID, *app.ApprovedBy)
	s.Nil(app.ExpiresAt)
	s.Nil(decision.Fee)

	s.Eventually(func() bool {
		for _, n := range s.notifications.Recent(s.licensee.ID) {
			if n.Type == string(event.LicenseApproved) {
				return strings.Contains(n.Message, "automatically")
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func (s *WorkflowSuite) TestSubmitGuards() {
	asset, terms := s.createAsset("Guarded")
	_, otherTerms := s.createAsset("Other")

	_, err := s.licenses.SubmitApplication(s.ctx, s.owner, &services.ApplyLicenseRequest{IPAssetID: asset.ID, LicenseTermsID: terms.ID})
	s.ErrorIs(err, apperrors.ErrPermission)

	_, err = s.licenses.SubmitApplication(s.ctx, s.buyer, &services.ApplyLicenseRequest{IPAssetID: asset.ID, LicenseTermsID: terms.ID})
	s.ErrorIs(err, apperrors.ErrPermission)

	_, err = s.licenses.SubmitApplication(s.ctx, s.licensee, &services.ApplyLicenseRequest{IPAssetID: asset.ID, LicenseTermsID: otherTerms.ID})
	s.ErrorIs(err, apperrors.ErrValidation)

	_, err = s.licenses.SubmitApplication(s.ctx, s.licensee, &services.ApplyLicenseRequest{IPAssetID: uuid.New(), LicenseTermsID: terms.ID})
	s.ErrorIs(err, apperrors.ErrNotFound)

	s.apply(asset, terms)
	_, err = s.licenses.SubmitApplication(s.ctx, s.licensee, &services.ApplyLicenseRequest{IPAssetID: asset.ID, LicenseTermsID: terms.ID})
	s.ErrorIs(err, apperrors.ErrConflict)
	s.Equal("pending", apperrors.State(err))
}

func (s *WorkflowSuite) TestSubmitOnSuspendedAssetConflicts() {
	asset, terms := s.createAsset("Suspended")
	_, err := s.ipService.UpdateIPAssetStatus(s.ctx, s.owner, asset.ID, &services.UpdateIPAssetStatusRequest{Status: models.AssetStatusSuspended})
	s.Require().NoError(err)

	_, err = s.licenses.SubmitApplication(s.ctx, s.licensee, &services.ApplyLicenseRequest{IPAssetID: asset.ID, LicenseTermsID: terms.ID})
	s.ErrorIs(err, apperrors.ErrConflict)
	s.Equal("suspended", apperrors.State(err))
}

func (s *WorkflowSuite) TestOnlyOwnerApproves() {
	asset, terms := s.createAsset("Owned")
	decision := s.apply(asset, terms)

	_, err := s.licenses.Approve(s.ctx, s.admin, decision.Application.ID)
	s.ErrorIs(err, apperrors.ErrPermission)

	_, err = s.licenses.Approve(s.ctx, s.owner, uuid.New())
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *WorkflowSuite) TestConcurrentApproveHasOneWinner() {
	asset, terms := s.createAsset("Contested")
	decision := s.apply(asset, terms)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.licenses.Approve(s.ctx, s.owner, decision.Application.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.ErrorIs(err, apperrors.ErrConflict)
		s.Equal("approved", apperrors.State(err))
	}
	s.Equal(1, succeeded)

	loaded, err := s.ipService.GetIPAsset(s.ctx, asset.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), loaded.ActiveLicenseCount)
}

func (s *WorkflowSuite) TestTerminalStatesStayTerminal() {
	asset, terms := s.createAsset("Rejected")
	decision := s.apply(asset, terms)

	_, err := s.licenses.Reject(s.ctx, s.owner, decision.Application.ID, &services.RejectLicenseRequest{Reason: "  "})
	s.ErrorIs(err, apperrors.ErrValidation)

	rejected, err := s.licenses.Reject(s.ctx, s.owner, decision.Application.ID, &services.RejectLicenseRequest{Reason: "Not a fit"})
	s.Require().NoError(err)
	s.Equal(models.ApplicationStatusRejected, rejected.Application.Status)
	s.Equal("Not a fit", rejected.Application.RejectionReason)

	_, err = s.licenses.Approve(s.ctx, s.owner, decision.Application.ID)
	s.ErrorIs(err, apperrors.ErrConflict)
	s.Equal("rejected", apperrors.State(err))

	_, err = s.licenses.Expire(s.ctx, decision.Application.ID)
	s.ErrorIs(err, apperrors.ErrConflict)

	_, err = s.licenses.Revoke(s.ctx, s.owner, decision.Application.ID, &services.RevokeLicenseRequest{Reason: "late"})
	s.ErrorIs(err, apperrors.ErrConflict)
	s.Equal("rejected", apperrors.State(err))
}

func (s *WorkflowSuite) TestProductRequiresApprovedLicense() {
	asset, terms := s.createAsset("Pending")
	decision := s.apply(asset, terms)

	_, err := s.products.CreateProduct(s.ctx, s.licensee, &services.CreateProductRequest{
		LicenseID: decision.Application.ID,
		Title:     "Too Early",
		Category:  "apparel",
		Price:     decimal.NewFromInt(20),
	})
	s.ErrorIs(err, apperrors.ErrConflict)
	s.Equal("pending", apperrors.State(err))
}

func (s *WorkflowSuite) TestIssuedChainIsVerifiable() {
	_, license := s.approvedLicense()
	detail := s.createProduct(license.ID, "25.00", 5)

	chain := detail.Authorization
	s.Require().NotNil(chain)
	s.Regexp(codePattern, chain.VerificationCode)
	s.True(strings.HasPrefix(chain.VerificationCode, "IMI-"+strings.ToUpper(strings.ReplaceAll(detail.ID.String(), "-", "")[:8])+"-001-"))
	s.Regexp(`^0x[0-9a-f]{64}$`, chain.BlockchainHash)

	first, err := s.authorization.Verify(s.ctx, chain.VerificationCode)
	s.Require().NoError(err)
	s.True(first.Valid)
	s.Equal(detail.ID, first.Product.ID)
	s.Equal(license.ID, first.License.ID)
	s.Equal(license.IPAssetID, first.IPAsset.ID)

	second, err := s.authorization.Verify(s.ctx, chain.VerificationCode)
	s.Require().NoError(err)
	s.Equal(first, second)
}

func (s *WorkflowSuite) TestVerifyRejectsTamperedAnchor() {
	_, license := s.approvedLicense()
	detail := s.createProduct(license.ID, "25.00", 5)

	chain := *detail.Authorization
	chain.BlockchainHash = "0x" + strings.Repeat("0", 64)
	s.Require().NoError(s.store.Tx(s.ctx, func(tx repository.Tx) error {
		return tx.Chains().Update(s.ctx, &chain)
	}))

	result, err := s.authorization.Verify(s.ctx, chain.VerificationCode)
	s.Require().NoError(err)
	s.False(result.Valid)
	s.Nil(result.Product)
}

// seedCodes stores inactive chains of another product holding the given
// sequence numbers of productID's code.
func (s *WorkflowSuite) seedCodes(productID uuid.UUID, seqs ...int) {
	prefix := strings.ToUpper(strings.ReplaceAll(productID.String(), "-", "")[:8])
	now := time.Now()
	s.Require().NoError(s.store.Tx(s.ctx, func(tx repository.Tx) error {
		for _, seq := range seqs {
			chain := models.AuthorizationChain{
				BaseModel:        models.NewBase(now),
				ProductID:        uuid.New(),
				IPAssetID:        uuid.New(),
				LicenseID:        uuid.New(),
				Sequence:         seq,
				VerificationCode: fmt.Sprintf("IMI-%s-%03d-%d", prefix, seq, now.UTC().Year()),
			}
			if err := tx.Chains().Create(s.ctx, &chain); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (s *WorkflowSuite) TestIssueSkipsCollidingCode() {
	_, license := s.approvedLicense()
	detail := s.createProduct(license.ID, "25.00", 5)
	_, err := s.authorization.Deactivate(s.ctx, detail.ID, "reprint")
	s.Require().NoError(err)

	s.seedCodes(detail.ID, 2)

	chain, err := s.authorization.Issue(s.ctx, detail.ID, license.ID)
	s.Require().NoError(err)
	s.Equal(3, chain.Sequence)
	s.Contains(chain.VerificationCode, "-003-")
}

func (s *WorkflowSuite) TestIssueGivesUpAfterMaxAttempts() {
	_, license := s.approvedLicense()
	detail := s.createProduct(license.ID, "25.00", 5)
	_, err := s.authorization.Deactivate(s.ctx, detail.ID, "reprint")
	s.Require().NoError(err)

	// sequences 2..6 cover all five attempts
	s.seedCodes(detail.ID, 2, 3, 4, 5, 6)

	_, err = s.authorization.Issue(s.ctx, detail.ID, license.ID)
	s.Require().ErrorIs(err, apperrors.ErrConflict)

	history, err := s.authorization.History(s.ctx, detail.ID)
	s.Require().NoError(err)
	s.Len(history, 1)
	s.False(history[0].IsActive)
}

func (s *WorkflowSuite) TestIssueReportsLicenseStateFirst() {
	_, license := s.approvedLicense()
	detail := s.createProduct(license.ID, "25.00", 5)

	asset, terms := s.createAsset("Griffin")
	pending := s.apply(asset, terms).Application

	_, err := s.authorization.Issue(s.ctx, detail.ID, pending.ID)
	s.Require().ErrorIs(err, apperrors.ErrConflict)
	s.Equal("pending", apperrors.State(err))

	_, other := s.approvedLicense()
	_, err = s.authorization.Issue(s.ctx, detail.ID, other.ID)
	s.ErrorIs(err, apperrors.ErrValidation)
}

func (s *WorkflowSuite) TestSubCentPriceIsRejected() {
	_, license := s.approvedLicense()

	_, err := s.products.CreateProduct(s.ctx, s.licensee, &services.CreateProductRequest{
		LicenseID:      license.ID,
		Title:          "Penny Sticker",
		Category:       "stickers",
		Price:          decimal.RequireFromString("0.004"),
		InventoryCount: 1,
	})
	s.Require().ErrorIs(err, apperrors.ErrValidation)

	page, err := s.products.SearchProducts(s.ctx, catalog.Filter{}, catalog.Sort{}, catalog.PageRequest{Page: 1, PageSize: 10})
	s.Require().NoError(err)
	s.Zero(page.Total)

	detail, err := s.products.CreateProduct(s.ctx, s.licensee, &services.CreateProductRequest{
		LicenseID:      license.ID,
		Title:          "Penny Sticker",
		Category:       "stickers",
		Price:          decimal.RequireFromString("0.01"),
		InventoryCount: 1,
	})
	s.Require().NoError(err)
	s.True(detail.Price.IsPositive())

	asset, _ := s.createAsset("Sprite")
	_, err = s.ipService.CreateLicenseTerms(s.ctx, s.owner, asset.ID, &services.CreateLicenseTermsRequest{
		LicenseType:            models.LicenseTypeStandard,
		RevenueSharePercentage: decimal.NewFromInt(15),
		BaseFee:                decimal.RequireFromString("1.999"),
	})
	s.ErrorIs(err, apperrors.ErrValidation)
}

func (s *WorkflowSuite) TestVerifyUnknownCodeIsInvalid() {
	result, err := s.authorization.Verify(s.ctx, "IMI-00000000-001-2024")
	s.Require().NoError(err)
	s.False(result.Valid)
	s.Nil(result.Product)

	again, err := s.authorization.Verify(s.ctx, "IMI-00000000-001-2024")
	s.Require().NoError(err)
	s.Equal(result, again)

	result, err = s.authorization.Verify(s.ctx, "")
	s.Require().NoError(err)
	s.False(result.Valid)
}

func (s *WorkflowSuite) TestAtMostOneActiveChain() {
	_, license := s.approvedLicense()
	detail := s.createProduct(license.ID, "25.00", 5)

	_, err := s.authorization.Issue(s.ctx, detail.ID, license.ID)
	s.ErrorIs(err, apperrors.ErrConflict)

	old, err := s.authorization.Deactivate(s.ctx, detail.ID, "counterfeit report")
	s.Require().NoError(err)
	s.False(old.IsActive)

	reissued, err := s.authorization.Issue(s.ctx, detail.ID, license.ID)
	s.Require().NoError(err)
	s.Equal(2, reissued.Sequence)
	s.Contains(reissued.VerificationCode, "-002-")

	history, err := s.authorization.History(s.ctx, detail.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(reissued.ID, history[0].ID)

	result, err := s.authorization.Verify(s.ctx, old.VerificationCode)
	s.Require().NoError(err)
	s.False(result.Valid)

	_, err = s.authorization.Deactivate(s.ctx, uuid.New(), "missing")
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *WorkflowSuite) TestRevokeDeactivatesAuthorizations() {
	asset, license := s.approvedLicense()
	detail := s.createProduct(license.ID, "25.00", 5)

	_, err := s.licenses.Revoke(s.ctx, s.buyer, license.ID, &services.RevokeLicenseRequest{Reason: "breach"})
	s.ErrorIs(err, apperrors.ErrPermission)

	decision, err := s.licenses.Revoke(s.ctx, s.admin, license.ID, &services.RevokeLicenseRequest{Reason: "breach of terms"})
	s.Require().NoError(err)
	s.Equal(models.ApplicationStatusRevoked, decision.Application.Status)
	s.Require().Len(decision.Deactivated, 1)
	s.Equal(detail.Authorization.ID, decision.Deactivated[0].ID)

	result, err := s.authorization.Verify(s.ctx, detail.Authorization.VerificationCode)
	s.Require().NoError(err)
	s.False(result.Valid)

	_, err = s.products.CreateProduct(s.ctx, s.licensee, &services.CreateProductRequest{
		LicenseID: license.ID,
		Title:     "After Revoke",
		Category:  "apparel",
		Price:     decimal.NewFromInt(10),
	})
	s.ErrorIs(err, apperrors.ErrConflict)
	s.Equal("revoked", apperrors.State(err))

	loaded, err := s.ipService.GetIPAsset(s.ctx, asset.ID)
	s.Require().NoError(err)
	s.Equal(int64(0), loaded.ActiveLicenseCount)
	s.Equal(int64(1), loaded.ApplicationCount)
}

func (s *WorkflowSuite) TestApprovalChargesLicenseFee() {
	_, license := s.approvedLicense(baseFee("50.00"))

	page, err := s.orders.ListTransactions(s.ctx, s.licensee, services.TransactionListParams{
		Type: models.TransactionTypeLicenseFee,
		Page: catalog.PageRequest{Page: 1, PageSize: 10},
	})
	s.Require().NoError(err)
	s.Require().Len(page.Items, 1)

	fee := page.Items[0]
	s.Equal(models.TransactionStatusPending, fee.Status)
	s.Equal(license.ID, *fee.LicenseID)
	s.Equal("5.00", fee.RevenueShares[models.PartyPlatform].StringFixed(2))
	s.Equal("45.00", fee.RevenueShares[models.PartySeller].StringFixed(2))
	s.NotContains(fee.RevenueShares, models.PartyIPCreator)

	_, err = s.orders.SettleTransaction(s.ctx, s.owner, fee.ID, "")
	s.ErrorIs(err, apperrors.ErrPermission)

	settled, err := s.orders.SettleTransaction(s.ctx, s.admin, fee.ID, "PAY-123")
	s.Require().NoError(err)
	s.Equal(models.TransactionStatusCompleted, settled.Status)
	s.Equal("PAY-123", settled.PaymentReference)

	_, err = s.orders.FailTransaction(s.ctx, s.admin, fee.ID)
	s.ErrorIs(err, apperrors.ErrConflict)
	s.Equal("completed", apperrors.State(err))
}

func (s *WorkflowSuite) TestCheckoutSplitsRevenue() {
	asset, license := s.approvedLicense()
	detail := s.createProduct(license.ID, "50.00", 3)

	c := cart.New(s.buyer.ID)
	_, err := c.AddItem(detail.Product, 2, map[string]string{"size": "M"})
	s.Require().NoError(err)

	result, err := s.orders.Checkout(s.ctx, s.buyer, c, &services.CheckoutRequest{PaymentMethod: "card"})
	s.Require().NoError(err)
	s.Require().Len(result.Transactions, 1)

	txn := result.Transactions[0]
	s.Equal("100.00", txn.Amount.StringFixed(2))
	s.Equal("10.00", txn.RevenueShares[models.PartyPlatform].StringFixed(2))
	s.Equal("13.50", txn.RevenueShares[models.PartyIPCreator].StringFixed(2))
	s.Equal("76.50", txn.RevenueShares[models.PartySeller].StringFixed(2))
	s.True(txn.RevenueShares.Sum().Equal(txn.Amount))
	s.True(strings.HasPrefix(txn.PaymentReference, "PAY-"))

	product, err := s.products.GetProduct(s.ctx, detail.ID)
	s.Require().NoError(err)
	s.Equal(1, product.InventoryCount)
	s.Equal(int64(2), product.SalesCount)

	s.Eventually(func() bool {
		for _, n := range s.notifications.Recent(asset.CreatorID) {
			if n.Type == string(event.TransactionCompleted) {
				return n.Data["amount"] == "100.00"
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func (s *WorkflowSuite) TestCheckoutIsAllOrNothing() {
	_, license := s.approvedLicense()
	plenty := s.createProduct(license.ID, "10.00", 10)
	scarce := s.createProduct(license.ID, "10.00", 1)

	c := cart.New(s.buyer.ID)
	_, err := c.AddItem(plenty.Product, 3, nil)
	s.Require().NoError(err)
	_, err = c.AddItem(scarce.Product, 2, nil)
	s.Require().NoError(err)

	_, err = s.orders.Checkout(s.ctx, s.buyer, c, &services.CheckoutRequest{PaymentMethod: "card"})
	s.ErrorIs(err, apperrors.ErrConflict)

	product, err := s.products.GetProduct(s.ctx, plenty.ID)
	s.Require().NoError(err)
	s.Equal(10, product.InventoryCount)

	page, err := s.orders.ListTransactions(s.ctx, s.buyer, services.TransactionListParams{Page: catalog.PageRequest{Page: 1, PageSize: 10}})
	s.Require().NoError(err)
	s.Equal(0, page.Total)
}

func (s *WorkflowSuite) TestCheckoutRejectsUnauthorizedProduct() {
	_, license := s.approvedLicense()
	detail := s.createProduct(license.ID, "10.00", 5)
	_, err := s.authorization.Deactivate(s.ctx, detail.ID, "takedown")
	s.Require().NoError(err)

	c := cart.New(s.buyer.ID)
	_, err = c.AddItem(detail.Product, 1, nil)
	s.Require().NoError(err)

	_, err = s.orders.Checkout(s.ctx, s.buyer, c, &services.CheckoutRequest{PaymentMethod: "card"})
	s.ErrorIs(err, apperrors.ErrConflict)
	s.Equal("unauthorized", apperrors.State(err))
}

func (s *WorkflowSuite) TestRefundRestoresInventory() {
	_, license := s.approvedLicense()
	detail := s.createProduct(license.ID, "10.00", 1)

	c := cart.New(s.buyer.ID)
	_, err := c.AddItem(detail.Product, 1, nil)
	s.Require().NoError(err)
	result, err := s.orders.Checkout(s.ctx, s.buyer, c, &services.CheckoutRequest{PaymentMethod: "wallet"})
	s.Require().NoError(err)

	product, err := s.products.GetProduct(s.ctx, detail.ID)
	s.Require().NoError(err)
	s.Equal(models.ProductStatusSoldOut, product.Status)

	refunded, err := s.orders.RefundTransaction(s.ctx, s.licensee, result.Transactions[0].ID, &services.RefundRequest{Reason: "damaged"})
	s.Require().NoError(err)
	s.Equal(models.TransactionStatusRefunded, refunded.Status)

	product, err = s.products.GetProduct(s.ctx, detail.ID)
	s.Require().NoError(err)
	s.Equal(models.ProductStatusActive, product.Status)
	s.Equal(1, product.InventoryCount)
}

func (s *WorkflowSuite) TestExpireDue() {
	_, license := s.approvedLicense(duration("30d"))
	s.Require().NotNil(license.ExpiresAt)
	detail := s.createProduct(license.ID, "10.00", 1)

	n, err := s.licenses.ExpireDue(s.ctx, time.Now())
	s.Require().NoError(err)
	s.Equal(0, n)

	n, err = s.licenses.ExpireDue(s.ctx, license.ExpiresAt.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(1, n)

	app, err := s.licenses.GetApplication(s.ctx, s.licensee, license.ID)
	s.Require().NoError(err)
	s.Equal(models.ApplicationStatusExpired, app.Status)

	result, err := s.authorization.Verify(s.ctx, detail.Authorization.VerificationCode)
	s.Require().NoError(err)
	s.False(result.Valid)

	n, err = s.licenses.ExpireDue(s.ctx, license.ExpiresAt.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(0, n)
}

func (s *WorkflowSuite) TestApplicationVisibility() {
	asset, terms := s.createAsset("Visible")
	decision := s.apply(asset, terms)
	stranger := models.Actor{ID: uuid.New(), Role: models.UserTypeCreator}

	_, err := s.licenses.GetApplication(s.ctx, stranger, decision.Application.ID)
	s.ErrorIs(err, apperrors.ErrPermission)

	_, err = s.licenses.GetApplication(s.ctx, s.owner, decision.Application.ID)
	s.NoError(err)

	owned, err := s.licenses.ListApplications(s.ctx, s.owner, services.LicenseListParams{
		Scope: "owner",
		Page:  catalog.PageRequest{Page: 1, PageSize: 10},
	})
	s.Require().NoError(err)
	s.Equal(1, owned.Total)

	mine, err := s.licenses.ListApplications(s.ctx, stranger, services.LicenseListParams{
		Page: catalog.PageRequest{Page: 1, PageSize: 10},
	})
	s.Require().NoError(err)
	s.Equal(0, mine.Total)
	s.NotNil(mine.Items)
}

func (s *WorkflowSuite) TestSearchIPAssetsPricesByLowestFee() {
	s.createAsset("Cheap Dragon", baseFee("5.00"))
	s.createAsset("Pricey Dragon", baseFee("80.00"))
	s.createAsset("Free Phoenix")

	floor := decimal.NewFromInt(1)
	page, err := s.ipService.SearchIPAssets(s.ctx,
		catalog.Filter{Search: "dragon", PriceMin: &floor},
		catalog.Sort{Key: catalog.SortPrice, Direction: catalog.Asc},
		catalog.PageRequest{Page: 1, PageSize: 10},
	)
	s.Require().NoError(err)
	s.Require().Len(page.Items, 2)
	s.Equal("Cheap Dragon", page.Items[0].Title)
	s.Equal("Pricey Dragon", page.Items[1].Title)
}

func (s *WorkflowSuite) TestLicenseTermsValidation() {
	asset, _ := s.createAsset("Validated")

	_, err := s.ipService.CreateLicenseTerms(s.ctx, s.owner, asset.ID, &services.CreateLicenseTermsRequest{
		LicenseType:            models.LicenseTypePremium,
		RevenueSharePercentage: decimal.NewFromInt(120),
	})
	s.ErrorIs(err, apperrors.ErrValidation)

	_, err = s.ipService.CreateLicenseTerms(s.ctx, s.owner, asset.ID, &services.CreateLicenseTermsRequest{
		LicenseType: models.LicenseTypePremium,
		Duration:    "forever",
	})
	s.ErrorIs(err, apperrors.ErrValidation)

	_, err = s.ipService.CreateLicenseTerms(s.ctx, s.licensee, asset.ID, &services.CreateLicenseTermsRequest{
		LicenseType: models.LicenseTypePremium,
	})
	s.ErrorIs(err, apperrors.ErrPermission)
}

func TestBlockchainHashIsDeterministic(t *testing.T) {
	svc := services.NewBlockchainService(nil)
	productID, licenseID := uuid.New(), uuid.New()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	a, err := svc.CreateProductRecord(productID, licenseID, at)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := svc.CreateProductRecord(productID, licenseID, at)
	c, _ := svc.CreateProductRecord(productID, licenseID, at.Add(time.Second))

	if a != b {
		t.Fatalf("hash not deterministic: %s != %s", a, b)
	}
	if a == c {
		t.Fatal("hash ignores issue time")
	}
	if !svc.VerifyProductRecord(a, productID, licenseID, at) {
		t.Fatal("hash does not verify")
	}
}
