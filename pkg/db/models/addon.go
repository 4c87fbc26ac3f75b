package models

import (
	"time"

	"github.com/google/uuid"
)

// Addon is a sellable product in the vendor catalog. Key is the stable
// upstream identifier; name is the display title, also unique.
type Addon struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Key      string    `gorm:"column:key;type:text;not null;uniqueIndex"`
	Name     string    `gorm:"column:name;type:text;not null;uniqueIndex"`
	SyncedAt time.Time `gorm:"column:synced_at;not null"`
}
