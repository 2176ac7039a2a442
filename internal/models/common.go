// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// SystemActorID approves applications whose terms are flagged auto_approve.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// NewBase returns a BaseModel with a fresh id and both timestamps set to now.
func NewBase(now time.Time) BaseModel {
	return BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// JSONB is stored as jsonb on PostgreSQL and as text elsewhere
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("unsupported JSONB source type")
	}

	return json.Unmarshal(bytes, j)
}

func (JSONB) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

// StringList keeps the PostgreSQL text[] encoding on every dialect
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	return pq.StringArray(s).Value()
}

func (s *StringList) Scan(value interface{}) error {
	return (*pq.StringArray)(s).Scan(value)
}

func (StringList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

func cloneJSONB(j JSONB) JSONB {
	if j == nil {
		return nil
	}
	return maps.Clone(j)
}

func cloneStrings(s StringList) StringList {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

// Enums
type UserType string

const (
	UserTypeCreator          UserType = "creator"
	UserTypeSecondaryCreator UserType = "secondary_creator"
	UserTypeBuyer            UserType = "buyer"
	UserTypeAdmin            UserType = "admin"
)

func (u UserType) Valid() bool {
	switch u {
	case UserTypeCreator, UserTypeSecondaryCreator, UserTypeBuyer, UserTypeAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller supplied by the identity provider.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role UserType  `json:"role"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == UserTypeAdmin
}

type VerificationStatus string

const (
	VerificationStatusPending  VerificationStatus = "pending"
	VerificationStatusApproved VerificationStatus = "approved"
	VerificationStatusRejected VerificationStatus = "rejected"
)

type AssetStatus string

const (
	AssetStatusActive    AssetStatus = "active"
	AssetStatusSuspended AssetStatus = "suspended"
	AssetStatusDeleted   AssetStatus = "deleted"
)

type LicenseType string

const (
	LicenseTypeStandard  LicenseType = "standard"
	LicenseTypePremium   LicenseType = "premium"
	LicenseTypeExclusive LicenseType = "exclusive"
)

type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusApproved ApplicationStatus = "approved"
	ApplicationStatusRejected ApplicationStatus = "rejected"
	ApplicationStatusRevoked  ApplicationStatus = "revoked"
	ApplicationStatusExpired  ApplicationStatus = "expired"
)

// Terminal reports whether no further workflow transition may leave this state.
func (s ApplicationStatus) Terminal() bool {
	switch s {
	case ApplicationStatusRejected, ApplicationStatusRevoked, ApplicationStatusExpired:
		return true
	}
	return false
}

type ProductStatus string

const (
	ProductStatusDraft     ProductStatus = "draft"
	ProductStatusActive    ProductStatus = "active"
	ProductStatusSoldOut   ProductStatus = "sold_out"
	ProductStatusSuspended ProductStatus = "suspended"
)

type TransactionType string

const (
	TransactionTypeProductSale  TransactionType = "product_sale"
	TransactionTypeLicenseFee   TransactionType = "license_fee"
	TransactionTypeRevenueShare TransactionType = "revenue_share"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

type PartyRole string

const (
	PartySeller    PartyRole = "seller"
	PartyIPCreator PartyRole = "ip_creator"
	PartyPlatform  PartyRole = "platform"
)
