// internal/models/transaction.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/javajoker/imi-licensing/internal/catalog"
)

// RevenueShares maps each party role to its portion of a transaction amount.
type RevenueShares map[PartyRole]decimal.Decimal

func (r RevenueShares) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, v := range r {
		total = total.Add(v)
	}
	return total
}

func (r RevenueShares) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *RevenueShares) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*r = nil
		return nil
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	}
	return errors.New("unsupported revenue shares source type")
}

func (RevenueShares) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

type Transaction struct {
	BaseModel
	TransactionType  TransactionType   `json:"transaction_type" gorm:"type:varchar(20);not null;index"`
	BuyerID          uuid.UUID         `json:"buyer_id" gorm:"type:uuid;not null;index"`
	SellerID         uuid.UUID         `json:"seller_id" gorm:"type:uuid;not null;index"`
	ProductID        *uuid.UUID        `json:"product_id" gorm:"type:uuid;index"`
	LicenseID        *uuid.UUID        `json:"license_id,omitempty" gorm:"type:uuid;index"`
	Quantity         int               `json:"quantity" gorm:"default:1"`
	Amount           decimal.Decimal   `json:"amount" gorm:"type:decimal(10,2);not null"`
	PlatformFee      decimal.Decimal   `json:"platform_fee" gorm:"type:decimal(10,2);not null"`
	RevenueShares    RevenueShares     `json:"revenue_shares"`
	PaymentMethod    string            `json:"payment_method" gorm:"size:50"`
	PaymentReference string            `json:"payment_reference" gorm:"size:255"`
	Status           TransactionStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	ProcessedAt      *time.Time        `json:"processed_at"`
	RefundedAt       *time.Time        `json:"refunded_at"`
	RefundReason     string            `json:"refund_reason,omitempty" gorm:"type:text"`
}

func (t Transaction) Clone() Transaction {
	if t.RevenueShares != nil {
		t.RevenueShares = maps.Clone(t.RevenueShares)
	}
	return t
}

func (t Transaction) CatalogFields() catalog.Fields {
	return catalog.Fields{
		Category:  string(t.TransactionType),
		Status:    string(t.Status),
		Price:     t.Amount,
		HasPrice:  true,
		CreatedAt: t.CreatedAt,
		CreatorID: t.SellerID.String(),
	}
}

type AuthorizationChain struct {
	BaseModel
	ProductID          uuid.UUID  `json:"product_id" gorm:"type:uuid;not null;index"`
	IPAssetID          uuid.UUID  `json:"ip_asset_id" gorm:"type:uuid;not null;index"`
	LicenseID          uuid.UUID  `json:"license_id" gorm:"type:uuid;not null;index"`
	Sequence           int        `json:"sequence" gorm:"not null;default:1"`
	BlockchainHash     string     `json:"blockchain_hash" gorm:"size:66"`
	VerificationCode   string     `json:"verification_code" gorm:"size:64;uniqueIndex"`
	IsActive           bool       `json:"is_active" gorm:"default:true;index"`
	DeactivatedAt      *time.Time `json:"deactivated_at,omitempty"`
	DeactivationReason string     `json:"deactivation_reason,omitempty" gorm:"type:text"`
}

func (c AuthorizationChain) Clone() AuthorizationChain {
	return c
}
