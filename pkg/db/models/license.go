package models

import (
	"time"

	"github.com/google/uuid"
)

// License is one sold license row from the vendor export, keyed by the
// upstream license identifier. AddonKey is denormalized next to AddonID so
// reporting queries avoid the join; the loader keeps the two in agreement.
// OrganizationID is owned by the enrichment pass, never by the load pass.
type License struct {
	ID                      uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LicenseID               string                 `gorm:"column:license_id;type:text;not null;uniqueIndex"`
	AddonID                 uuid.UUID              `gorm:"column:addon_id;type:uuid;not null"`
	AddonKey                string                 `gorm:"column:addon_key;type:text;not null"`
	LicenseContactDetailsID *uuid.UUID             `gorm:"column:license_contact_details_id;type:uuid"`
	PartnerDetailsID        *uuid.UUID             `gorm:"column:partner_details_id;type:uuid"`
	OrganizationID          *uuid.UUID             `gorm:"column:organization_id;type:uuid"`
	Hosting                 *string                `gorm:"column:hosting"`
	HostLicenseID           *string                `gorm:"column:host_license_id"`
	SourceLastUpdated       *time.Time             `gorm:"column:source_last_updated"`
	LicenseType             *string                `gorm:"column:license_type"`
	MaintenanceStartDate    *time.Time             `gorm:"column:maintenance_start_date"`
	MaintenanceEndDate      *time.Time             `gorm:"column:maintenance_end_date"`
	Status                  *string                `gorm:"column:status"`
	Tier                    *string                `gorm:"column:tier"`
	Addon                   *Addon                 `gorm:"foreignKey:AddonID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	LicenseContactDetails   *LicenseContactDetails `gorm:"foreignKey:LicenseContactDetailsID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	PartnerDetails          *PartnerDetails        `gorm:"foreignKey:PartnerDetailsID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Organization            *Organization          `gorm:"foreignKey:OrganizationID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	SyncedAt                time.Time              `gorm:"column:synced_at;not null"`
}
