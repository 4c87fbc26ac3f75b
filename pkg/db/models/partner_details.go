package models

import (
	"time"

	"github.com/google/uuid"
)

// PartnerDetails is the reseller attached to a license, keyed by the
// (name, type) pair since one partner can act under several types.
type PartnerDetails struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name             string    `gorm:"column:name;type:text;not null;uniqueIndex:uniq_partner_details_name_type"`
	Type             string    `gorm:"column:type;type:text;not null;uniqueIndex:uniq_partner_details_name_type"`
	BillContactName  *string   `gorm:"column:bill_contact_name"`
	BillContactEmail *string   `gorm:"column:bill_contact_email"`
	SyncedAt         time.Time `gorm:"column:synced_at;not null"`
}
