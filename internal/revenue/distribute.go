// internal/revenue/distribute.go
package revenue

import (
	"github.com/shopspring/decimal"

	"github.com/javajoker/imi-licensing/internal/apperrors"
	"github.com/javajoker/imi-licensing/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Shares is the per-party split of a gross amount.
type Shares struct {
	Gross     decimal.Decimal
	Platform  decimal.Decimal
	IPCreator decimal.Decimal
	Seller    decimal.Decimal
	// false for license fees, which carry no ip_creator entry
	HasIPCreator bool
}

// Distribute splits the proceeds of a product sale. Percentages are on the 0-100 scale.
// The seller receives the remainder so the parts always add up to gross.
func Distribute(gross decimal.Decimal, terms models.LicenseTerms, platformFeePercent decimal.Decimal) (Shares, error) {
	if err := checkInputs(gross, platformFeePercent); err != nil {
		return Shares{}, err
	}
	if err := checkPercent("revenue share percentage", terms.RevenueSharePercentage); err != nil {
		return Shares{}, err
	}

	platform := gross.Mul(platformFeePercent).Div(hundred).Round(2)
	ipCreator := gross.Sub(platform).Mul(terms.RevenueSharePercentage).Div(hundred).Round(2)

	return Shares{
		Gross:        gross,
		Platform:     platform,
		IPCreator:    ipCreator,
		Seller:       gross.Sub(platform).Sub(ipCreator),
		HasIPCreator: true,
	}, nil
}

// DistributeLicenseFee splits a license fee between the platform and the licensor.
func DistributeLicenseFee(gross decimal.Decimal, platformFeePercent decimal.Decimal) (Shares, error) {
	if err := checkInputs(gross, platformFeePercent); err != nil {
		return Shares{}, err
	}

	platform := gross.Mul(platformFeePercent).Div(hundred).Round(2)
	return Shares{
		Gross:    gross,
		Platform: platform,
		Seller:   gross.Sub(platform),
	}, nil
}

// Map renders the shares in the shape stored on a transaction.
func (s Shares) Map() models.RevenueShares {
	m := models.RevenueShares{
		models.PartyPlatform: s.Platform,
		models.PartySeller:   s.Seller,
	}
	if s.HasIPCreator {
		m[models.PartyIPCreator] = s.IPCreator
	}
	return m
}

// Verify guards the sum invariant.
func (s Shares) Verify() error {
	if sum := s.Map().Sum(); !sum.Equal(s.Gross) {
		return apperrors.Consistency("revenue shares sum to %s, expected %s", sum.StringFixed(2), s.Gross.StringFixed(2))
	}
	return nil
}

func checkInputs(gross, platformFeePercent decimal.Decimal) error {
	if gross.IsNegative() {
		return apperrors.Validation("gross amount must not be negative, got %s", gross)
	}
	return checkPercent("platform fee percentage", platformFeePercent)
}

func checkPercent(name string, p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(hundred) {
		return apperrors.Validation("%s must be within [0,100], got %s", name, p)
	}
	return nil
}
