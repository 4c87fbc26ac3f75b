package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensesync/pkg/enums"
)

// MailingListEntry is the downstream subscriber feed derived from license
// technical contacts. TrialExp carries the latest maintenance end date;
// PushedAt is nil until the provider accepts the entry.
type MailingListEntry struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EmailAddress string              `gorm:"column:email_address;type:text;not null;uniqueIndex"`
	Status       enums.MailingStatus `gorm:"column:status;type:text;not null;default:'subscribed'"`
	TrialExp     *time.Time          `gorm:"column:trial_exp"`
	PushedAt     *time.Time          `gorm:"column:pushed_at"`
	SyncedAt     time.Time           `gorm:"column:synced_at;not null"`
}
