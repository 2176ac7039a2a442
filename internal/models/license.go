// internal/models/license.go
package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/imi-licensing/internal/catalog"
)

type LicenseApplication struct {
	BaseModel
	IPAssetID        uuid.UUID         `json:"ip_asset_id" gorm:"type:uuid;not null;index"`
	ApplicantID      uuid.UUID         `json:"applicant_id" gorm:"type:uuid;not null;index"`
	LicenseTermsID   uuid.UUID         `json:"license_terms_id" gorm:"type:uuid;not null;index"`
	ApplicationData  JSONB             `json:"application_data"`
	Status           ApplicationStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	ApprovedAt       *time.Time        `json:"approved_at"`
	ApprovedBy       *uuid.UUID        `json:"approved_by" gorm:"type:uuid"`
	RejectionReason  string            `json:"rejection_reason,omitempty" gorm:"type:text"`
	RevokedAt        *time.Time        `json:"revoked_at,omitempty"`
	RevokedBy        *uuid.UUID        `json:"revoked_by,omitempty" gorm:"type:uuid"`
	RevocationReason string            `json:"revocation_reason,omitempty" gorm:"type:text"`
	ExpiresAt        *time.Time        `json:"expires_at" gorm:"index"`
	Version          int64             `json:"version" gorm:"not null;default:0"`
}

func (l LicenseApplication) Clone() LicenseApplication {
	l.ApplicationData = cloneJSONB(l.ApplicationData)
	return l
}

// IsActive reports whether the license currently authorizes products.
func (l LicenseApplication) IsActive(now time.Time) bool {
	if l.Status != ApplicationStatusApproved {
		return false
	}
	return l.ExpiresAt == nil || now.Before(*l.ExpiresAt)
}

func (l LicenseApplication) CatalogFields() catalog.Fields {
	return catalog.Fields{
		Status:    string(l.Status),
		CreatedAt: l.CreatedAt,
		CreatorID: l.ApplicantID.String(),
	}
}
