package models

import (
	"time"

	"github.com/google/uuid"
)

// Contact is a person attached to a license, keyed by email address.
type Contact struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email    string    `gorm:"column:email;type:text;not null;uniqueIndex"`
	Name     *string   `gorm:"column:name"`
	Phone    *string   `gorm:"column:phone"`
	Address1 *string   `gorm:"column:address1"`
	Address2 *string   `gorm:"column:address2"`
	City     *string   `gorm:"column:city"`
	State    *string   `gorm:"column:state"`
	Postcode *string   `gorm:"column:postcode"`
	SyncedAt time.Time `gorm:"column:synced_at;not null"`
}
