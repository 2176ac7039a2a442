package revenue

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/imi-licensing/internal/apperrors"
	"github.com/javajoker/imi-licensing/internal/models"
)

func terms(share string) models.LicenseTerms {
	return models.LicenseTerms{
		BaseFee:                decimal.NewFromInt(50),
		RevenueSharePercentage: decimal.RequireFromString(share),
	}
}

func TestDistributeExampleSale(t *testing.T) {
	shares, err := Distribute(decimal.NewFromInt(100), terms("15"), decimal.NewFromInt(10))
	require.NoError(t, err)

	assert.Equal(t, "10.00", shares.Platform.StringFixed(2))
	assert.Equal(t, "13.50", shares.IPCreator.StringFixed(2))
	assert.Equal(t, "76.50", shares.Seller.StringFixed(2))
	assert.NoError(t, shares.Verify())

	m := shares.Map()
	assert.Len(t, m, 3)
	assert.True(t, m.Sum().Equal(decimal.NewFromInt(100)))
}

func TestDistributeSellerAbsorbsRounding(t *testing.T) {
	shares, err := Distribute(decimal.RequireFromString("33.33"), terms("33.33"), decimal.RequireFromString("7.5"))
	require.NoError(t, err)

	// 33.33 * 7.5% = 2.49975 -> 2.50; (33.33 - 2.50) * 33.33% = 10.2756... -> 10.28
	assert.Equal(t, "2.50", shares.Platform.StringFixed(2))
	assert.Equal(t, "10.28", shares.IPCreator.StringFixed(2))
	assert.Equal(t, "20.55", shares.Seller.StringFixed(2))
	assert.NoError(t, shares.Verify())
}

func TestDistributeSumsExactlyForRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		gross := decimal.New(rng.Int63n(10_000_000), -2)
		share := decimal.New(rng.Int63n(10_001), -2)
		fee := decimal.New(rng.Int63n(10_001), -2)

		shares, err := Distribute(gross, terms(share.String()), fee)
		require.NoError(t, err)
		require.NoError(t, shares.Verify(), "gross=%s share=%s fee=%s", gross, share, fee)
		require.True(t, shares.Map().Sum().Equal(gross))

		lf, err := DistributeLicenseFee(gross, fee)
		require.NoError(t, err)
		require.NoError(t, lf.Verify())
	}
}

func TestLicenseFeeOmitsIPCreator(t *testing.T) {
	shares, err := DistributeLicenseFee(decimal.NewFromInt(50), decimal.NewFromInt(10))
	require.NoError(t, err)

	m := shares.Map()
	assert.NotContains(t, m, models.PartyIPCreator)
	assert.Equal(t, "5.00", m[models.PartyPlatform].StringFixed(2))
	assert.Equal(t, "45.00", m[models.PartySeller].StringFixed(2))
}

func TestDistributeRejectsBadInputs(t *testing.T) {
	_, err := Distribute(decimal.NewFromInt(-1), terms("10"), decimal.NewFromInt(10))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = Distribute(decimal.NewFromInt(10), terms("100.01"), decimal.NewFromInt(10))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = Distribute(decimal.NewFromInt(10), terms("10"), decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = DistributeLicenseFee(decimal.NewFromInt(10), decimal.NewFromInt(101))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestVerifyDetectsDrift(t *testing.T) {
	shares := Shares{
		Gross:        decimal.NewFromInt(100),
		Platform:     decimal.NewFromInt(10),
		IPCreator:    decimal.NewFromInt(13),
		Seller:       decimal.NewFromInt(76),
		HasIPCreator: true,
	}
	assert.ErrorIs(t, shares.Verify(), apperrors.ErrConsistency)
}
