package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/javajoker/imi-licensing/internal/apperrors"
	"github.com/javajoker/imi-licensing/internal/models"
)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, Migrate(db))
	return NewGormStore(db)
}

type StoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) Store
	store    Store
	ctx      context.Context
}

func (s *StoreSuite) SetupTest() {
	s.store = s.newStore(s.T())
	s.ctx = context.Background()
}

func (s *StoreSuite) TearDownTest() {
	s.NoError(s.store.Close())
}

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(*testing.T) Store { return NewMemoryStore() }})
}

func TestGormStoreOnSQLite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: newSQLiteStore})
}

func (s *StoreSuite) seedApplication() (models.IPAsset, models.LicenseTerms, models.LicenseApplication) {
	asset := models.IPAsset{
		CreatorID: uuid.New(),
		Title:     "Mountain Fox",
		Category:  "illustration",
		Status:    models.AssetStatusActive,
		Tags:      models.StringList{"fox", "mountain"},
		Metadata:  models.JSONB{"dimensions": "4000x3000"},
	}
	terms := models.LicenseTerms{
		LicenseType:            models.LicenseTypeStandard,
		RevenueSharePercentage: decimal.NewFromInt(15),
		BaseFee:                decimal.NewFromInt(50),
		Duration:               "12m",
		IsActive:               true,
	}
	app := models.LicenseApplication{
		ApplicantID:     uuid.New(),
		Status:          models.ApplicationStatusPending,
		ApplicationData: models.JSONB{"intended_use": "t-shirts"},
	}

	err := s.store.Tx(s.ctx, func(tx Tx) error {
		if err := tx.IPAssets().Create(s.ctx, &asset); err != nil {
			return err
		}
		terms.IPAssetID = asset.ID
		if err := tx.LicenseTerms().Create(s.ctx, &terms); err != nil {
			return err
		}
		app.IPAssetID = asset.ID
		app.LicenseTermsID = terms.ID
		return tx.Applications().Create(s.ctx, &app)
	})
	s.Require().NoError(err)
	return asset, terms, app
}

func (s *StoreSuite) TestCreateAndGetRoundTrip() {
	asset, terms, app := s.seedApplication()

	s.Require().NoError(s.store.Tx(s.ctx, func(tx Tx) error {
		got, err := tx.IPAssets().Get(s.ctx, asset.ID)
		s.Require().NoError(err)
		s.Equal("Mountain Fox", got.Title)
		s.Equal(models.StringList{"fox", "mountain"}, got.Tags)
		s.Equal("4000x3000", got.Metadata["dimensions"])

		gotTerms, err := tx.LicenseTerms().ListByAssets(s.ctx, []uuid.UUID{asset.ID})
		s.Require().NoError(err)
		s.Require().Len(gotTerms, 1)
		s.Equal(terms.ID, gotTerms[0].ID)
		s.True(gotTerms[0].RevenueSharePercentage.Equal(decimal.NewFromInt(15)))

		gotApp, err := tx.Applications().Get(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(models.ApplicationStatusPending, gotApp.Status)
		return nil
	}))
}

func (s *StoreSuite) TestMissingRowIsNotFound() {
	err := s.store.Tx(s.ctx, func(tx Tx) error {
		_, err := tx.Products().Get(s.ctx, uuid.New())
		return err
	})
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *StoreSuite) TestFailedTransactionRollsBack() {
	asset := models.IPAsset{CreatorID: uuid.New(), Title: "Draft", Status: models.AssetStatusActive}
	boom := errors.New("boom")

	err := s.store.Tx(s.ctx, func(tx Tx) error {
		if err := tx.IPAssets().Create(s.ctx, &asset); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	s.Require().NoError(s.store.Tx(s.ctx, func(tx Tx) error {
		_, err := tx.IPAssets().Get(s.ctx, asset.ID)
		s.ErrorIs(err, apperrors.ErrNotFound)
		return nil
	}))
}

func (s *StoreSuite) TestStaleApplicationUpdateConflicts() {
	_, _, app := s.seedApplication()

	stale := app
	s.Require().NoError(s.store.Tx(s.ctx, func(tx Tx) error {
		app.Status = models.ApplicationStatusApproved
		return tx.Applications().Update(s.ctx, &app)
	}))
	s.Equal(int64(1), app.Version)

	err := s.store.Tx(s.ctx, func(tx Tx) error {
		stale.Status = models.ApplicationStatusRejected
		return tx.Applications().Update(s.ctx, &stale)
	})
	s.ErrorIs(err, apperrors.ErrConflict)
	s.Equal("approved", apperrors.State(err))
}

func (s *StoreSuite) TestApplicationQueries() {
	asset, terms, app := s.seedApplication()
	past := time.Now().Add(-time.Hour)

	s.Require().NoError(s.store.Tx(s.ctx, func(tx Tx) error {
		app.Status = models.ApplicationStatusApproved
		app.ExpiresAt = &past
		return tx.Applications().Update(s.ctx, &app)
	}))

	s.Require().NoError(s.store.Tx(s.ctx, func(tx Tx) error {
		n, err := tx.Applications().CountApproved(s.ctx, terms.ID)
		s.Require().NoError(err)
		s.Equal(int64(1), n)

		open, err := tx.Applications().ListOpen(s.ctx, asset.ID, app.ApplicantID)
		s.Require().NoError(err)
		s.Len(open, 1)

		due, err := tx.Applications().ListDue(s.ctx, time.Now())
		s.Require().NoError(err)
		s.Require().Len(due, 1)
		s.Equal(app.ID, due[0].ID)

		stranger := uuid.New()
		mine, err := tx.Applications().List(s.ctx, ApplicationFilter{ApplicantID: &stranger, AssetIDs: []uuid.UUID{asset.ID}})
		s.Require().NoError(err)
		s.Len(mine, 1)

		none, err := tx.Applications().List(s.ctx, ApplicationFilter{ApplicantID: &stranger})
		s.Require().NoError(err)
		s.Empty(none)
		return nil
	}))
}

func (s *StoreSuite) newChain(productID uuid.UUID, code string) models.AuthorizationChain {
	return models.AuthorizationChain{
		ProductID:        productID,
		IPAssetID:        uuid.New(),
		LicenseID:        uuid.New(),
		Sequence:         1,
		VerificationCode: code,
		BlockchainHash:   "0xabc",
		IsActive:         true,
	}
}

func (s *StoreSuite) TestAtMostOneActiveChainPerProduct() {
	productID := uuid.New()
	first := s.newChain(productID, "IMI-AAAA0001-001-2025")
	s.Require().NoError(s.store.Tx(s.ctx, func(tx Tx) error {
		return tx.Chains().Create(s.ctx, &first)
	}))

	second := s.newChain(productID, "IMI-AAAA0001-002-2025")
	err := s.store.Tx(s.ctx, func(tx Tx) error {
		return tx.Chains().Create(s.ctx, &second)
	})
	s.ErrorIs(err, apperrors.ErrConflict)

	// deactivating the first frees the slot
	s.Require().NoError(s.store.Tx(s.ctx, func(tx Tx) error {
		first.IsActive = false
		if err := tx.Chains().Update(s.ctx, &first); err != nil {
			return err
		}
		second = s.newChain(productID, "IMI-AAAA0001-002-2025")
		return tx.Chains().Create(s.ctx, &second)
	}))

	s.Require().NoError(s.store.Tx(s.ctx, func(tx Tx) error {
		active, err := tx.Chains().GetActiveByProduct(s.ctx, productID)
		s.Require().NoError(err)
		s.Equal(second.ID, active.ID)

		n, err := tx.Chains().CountByProduct(s.ctx, productID)
		s.Require().NoError(err)
		s.Equal(int64(2), n)

		history, err := tx.Chains().ListByProduct(s.ctx, productID)
		s.Require().NoError(err)
		s.Require().Len(history, 2)
		s.Equal(second.ID, history[0].ID)
		return nil
	}))
}

func (s *StoreSuite) TestVerificationCodeIsUnique() {
	a := s.newChain(uuid.New(), "IMI-BBBB0001-001-2025")
	b := s.newChain(uuid.New(), "IMI-BBBB0001-001-2025")

	s.Require().NoError(s.store.Tx(s.ctx, func(tx Tx) error { return tx.Chains().Create(s.ctx, &a) }))
	err := s.store.Tx(s.ctx, func(tx Tx) error { return tx.Chains().Create(s.ctx, &b) })
	s.ErrorIs(err, apperrors.ErrConflict)

	s.Require().NoError(s.store.Tx(s.ctx, func(tx Tx) error {
		exists, err := tx.Chains().CodeExists(s.ctx, a.VerificationCode)
		s.Require().NoError(err)
		s.True(exists)

		got, err := tx.Chains().GetByCode(s.ctx, a.VerificationCode)
		s.Require().NoError(err)
		s.Equal(a.ID, got.ID)
		return nil
	}))
}

func (s *StoreSuite) TestTransactionsByParty() {
	buyer, seller := uuid.New(), uuid.New()
	txn := models.Transaction{
		TransactionType: models.TransactionTypeProductSale,
		BuyerID:         buyer,
		SellerID:        seller,
		Quantity:        1,
		Amount:          decimal.NewFromInt(100),
		PlatformFee:     decimal.NewFromInt(10),
		RevenueShares: models.RevenueShares{
			models.PartyPlatform:  decimal.NewFromInt(10),
			models.PartyIPCreator: decimal.RequireFromString("13.5"),
			models.PartySeller:    decimal.RequireFromString("76.5"),
		},
		Status: models.TransactionStatusCompleted,
	}
	s.Require().NoError(s.store.Tx(s.ctx, func(tx Tx) error { return tx.Transactions().Create(s.ctx, &txn) }))

	s.Require().NoError(s.store.Tx(s.ctx, func(tx Tx) error {
		for _, party := range []uuid.UUID{buyer, seller} {
			list, err := tx.Transactions().List(s.ctx, TransactionFilter{PartyID: &party})
			s.Require().NoError(err)
			s.Require().Len(list, 1)
			s.True(list[0].RevenueShares.Sum().Equal(decimal.NewFromInt(100)))
		}
		other := uuid.New()
		list, err := tx.Transactions().List(s.ctx, TransactionFilter{PartyID: &other})
		s.Require().NoError(err)
		s.Empty(list)
		return nil
	}))
}
