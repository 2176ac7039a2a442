// internal/models/product.go
package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/javajoker/imi-licensing/internal/catalog"
)

type Product struct {
	BaseModel
	CreatorID            uuid.UUID       `json:"creator_id" gorm:"type:uuid;not null;index"`
	LicenseID            uuid.UUID       `json:"license_id" gorm:"type:uuid;not null;index"`
	Title                string          `json:"title" gorm:"size:255;not null"`
	Description          string          `json:"description" gorm:"type:text"`
	Category             string          `json:"category" gorm:"size:100;index"`
	Price                decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	InventoryCount       int             `json:"inventory_count" gorm:"default:0"`
	Images               StringList      `json:"images"`
	Specifications       JSONB           `json:"specifications"`
	Status               ProductStatus   `json:"status" gorm:"type:varchar(20);default:'draft';index"`
	AuthenticityVerified bool            `json:"authenticity_verified" gorm:"default:true"`
	Tags                 StringList      `json:"tags"`
	ViewCount            int64           `json:"view_count" gorm:"default:0"`
	SalesCount           int64           `json:"sales_count" gorm:"default:0"`
}

func (p Product) Clone() Product {
	p.Images = cloneStrings(p.Images)
	p.Tags = cloneStrings(p.Tags)
	p.Specifications = cloneJSONB(p.Specifications)
	return p
}

func (p Product) CatalogFields() catalog.Fields {
	return catalog.Fields{
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		Status:      string(p.Status),
		Price:       p.Price,
		HasPrice:    true,
		CreatedAt:   p.CreatedAt,
		ViewCount:   p.ViewCount,
		Popularity:  p.SalesCount,
		Tags:        p.Tags,
		CreatorID:   p.CreatorID.String(),
	}
}
