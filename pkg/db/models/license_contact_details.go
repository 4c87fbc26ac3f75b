package models

import (
	"time"

	"github.com/google/uuid"
)

// LicenseContactDetails groups the customer contacts behind a license,
// keyed by (company, country, region). The technical contact is mandatory;
// billing is optional.
type LicenseContactDetails struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Company       string     `gorm:"column:company;type:text;not null;uniqueIndex:uniq_license_contact_details_key"`
	Country       string     `gorm:"column:country;type:text;not null;uniqueIndex:uniq_license_contact_details_key"`
	Region        string     `gorm:"column:region;type:text;not null;uniqueIndex:uniq_license_contact_details_key"`
	BillContactID *uuid.UUID `gorm:"column:bill_contact_id;type:uuid"`
	TechContactID uuid.UUID  `gorm:"column:tech_contact_id;type:uuid;not null"`
	BillContact   *Contact   `gorm:"foreignKey:BillContactID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	TechContact   *Contact   `gorm:"foreignKey:TechContactID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	SyncedAt      time.Time  `gorm:"column:synced_at;not null"`
}
