// internal/event/types.go
package event

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	LicenseSubmitted         EventType = "license.submitted"
	LicenseApproved          EventType = "license.approved"
	LicenseRejected          EventType = "license.rejected"
	LicenseRevoked           EventType = "license.revoked"
	LicenseExpired           EventType = "license.expired"
	AuthorizationIssued      EventType = "authorization.issued"
	AuthorizationDeactivated EventType = "authorization.deactivated"
	TransactionCompleted     EventType = "transaction.completed"
)

// All lists every event type the engine emits.
var All = []EventType{
	LicenseSubmitted,
	LicenseApproved,
	LicenseRejected,
	LicenseRevoked,
	LicenseExpired,
	AuthorizationIssued,
	AuthorizationDeactivated,
	TransactionCompleted,
}

type LicenseEvent struct {
	ApplicationID uuid.UUID
	IPAssetID     uuid.UUID
	ApplicantID   uuid.UUID
	OwnerID       uuid.UUID
	ActorID       uuid.UUID
	Status        string
	Reason        string
}

type AuthorizationEvent struct {
	ChainID          uuid.UUID
	ProductID        uuid.UUID
	LicenseID        uuid.UUID
	IPAssetID        uuid.UUID
	VerificationCode string
	Reason           string
}

type TransactionEvent struct {
	TransactionID uuid.UUID
	Type          string
	BuyerID       uuid.UUID
	SellerID      uuid.UUID
	IPCreatorID   uuid.UUID
	ProductID     uuid.UUID
	Amount        decimal.Decimal
	Shares        map[string]decimal.Decimal
}
