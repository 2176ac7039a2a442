// internal/models/ip_asset.go
package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/javajoker/imi-licensing/internal/catalog"
)

type IPAsset struct {
	BaseModel
	CreatorID          uuid.UUID          `json:"creator_id" gorm:"type:uuid;not null;index"`
	Title              string             `json:"title" gorm:"size:255;not null"`
	Description        string             `json:"description" gorm:"type:text"`
	Category           string             `json:"category" gorm:"size:100;index"`
	ContentType        string             `json:"content_type" gorm:"size:50"`
	FileURLs           StringList         `json:"file_urls"`
	Metadata           JSONB              `json:"metadata"`
	VerificationStatus VerificationStatus `json:"verification_status" gorm:"type:varchar(20);default:'pending';index"`
	BlockchainHash     string             `json:"blockchain_hash,omitempty" gorm:"size:66"`
	Status             AssetStatus        `json:"status" gorm:"type:varchar(20);default:'active';index"`
	Tags               StringList         `json:"tags"`
	ViewCount          int64              `json:"view_count" gorm:"default:0"`
	ApplicationCount   int64              `json:"application_count" gorm:"default:0"`
	ActiveLicenseCount int64              `json:"active_license_count" gorm:"default:0"`

	// Populated by reads that need pricing; never persisted through the asset row.
	LicenseTerms []LicenseTerms `json:"license_terms,omitempty" gorm:"-"`
}

func (a IPAsset) Clone() IPAsset {
	a.FileURLs = cloneStrings(a.FileURLs)
	a.Tags = cloneStrings(a.Tags)
	a.Metadata = cloneJSONB(a.Metadata)
	if a.LicenseTerms != nil {
		a.LicenseTerms = append([]LicenseTerms(nil), a.LicenseTerms...)
	}
	return a
}

// LowestBaseFee returns the cheapest entry price across attached terms.
func (a IPAsset) LowestBaseFee() (decimal.Decimal, bool) {
	var lowest decimal.Decimal
	found := false
	for _, t := range a.LicenseTerms {
		if !t.IsActive {
			continue
		}
		if !found || t.BaseFee.LessThan(lowest) {
			lowest = t.BaseFee
			found = true
		}
	}
	return lowest, found
}

func (a IPAsset) CatalogFields() catalog.Fields {
	price, ok := a.LowestBaseFee()
	return catalog.Fields{
		Title:       a.Title,
		Description: a.Description,
		Category:    a.Category,
		Status:      string(a.Status),
		Price:       price,
		HasPrice:    ok,
		CreatedAt:   a.CreatedAt,
		ViewCount:   a.ViewCount,
		Popularity:  a.ActiveLicenseCount,
		Tags:        a.Tags,
		CreatorID:   a.CreatorID.String(),
	}
}

type LicenseTerms struct {
	BaseModel
	IPAssetID              uuid.UUID       `json:"ip_asset_id" gorm:"type:uuid;not null;index"`
	LicenseType            LicenseType     `json:"license_type" gorm:"type:varchar(20);not null"`
	RevenueSharePercentage decimal.Decimal `json:"revenue_share_percentage" gorm:"type:decimal(5,2);not null"`
	BaseFee                decimal.Decimal `json:"base_fee" gorm:"type:decimal(10,2);default:0"`
	Territory              string          `json:"territory" gorm:"size:100;default:'global'"`
	Duration               string          `json:"duration" gorm:"size:50;default:'perpetual'"`
	Requirements           string          `json:"requirements" gorm:"type:text"`
	Restrictions           string          `json:"restrictions" gorm:"type:text"`
	AutoApprove            bool            `json:"auto_approve" gorm:"default:false"`
	MaxLicenses            int             `json:"max_licenses" gorm:"default:0"` // 0 = unlimited
	IsActive               bool            `json:"is_active" gorm:"default:true"`
}

func (t LicenseTerms) Clone() LicenseTerms {
	return t
}
