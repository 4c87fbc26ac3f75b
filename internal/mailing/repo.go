package mailing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensesync/pkg/db"
	"github.com/angelmondragon/licensesync/pkg/db/models"
	"github.com/angelmondragon/licensesync/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensesync/pkg/errors"
)

// Repository keeps the local subscriber feed. Entries are keyed by email;
// PushedAt tracks what the provider has already accepted.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(database *gorm.DB) *Repository {
	return &Repository{db: database, now: time.Now}
}

// UpsertEntry records a subscriber. The trial expiry only ever moves
// forward, and moving it clears PushedAt so the provider sees the change.
func (r *Repository) UpsertEntry(ctx context.Context, email string, trialExp *time.Time) (*models.MailingListEntry, bool, error) {
	var (
		entry   models.MailingListEntry
		created bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		findErr := tx.Where("email_address = ?", email).First(&entry).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			created = true
			entry = models.MailingListEntry{
				ID:           uuid.New(),
				EmailAddress: email,
				Status:       enums.MailingStatusSubscribed,
				TrialExp:     trialExp,
			}
		case findErr != nil:
			return fmt.Errorf("find mailing entry: %w", findErr)
		default:
			if extendsTrial(entry.TrialExp, trialExp) {
				entry.TrialExp = trialExp
				entry.PushedAt = nil
			}
		}
		entry.SyncedAt = r.now().UTC()
		if created {
			if err := tx.Create(&entry).Error; err != nil {
				if db.IsUniqueViolation(err, "") {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "mailing entry email already taken")
				}
				return err
			}
			return nil
		}
		return tx.Save(&entry).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &entry, created, nil
}

func extendsTrial(current, incoming *time.Time) bool {
	if incoming == nil {
		return false
	}
	return current == nil || incoming.After(*current)
}

// ListUnpushed returns every entry the provider has not seen in its current
// shape, in stable email order.
func (r *Repository) ListUnpushed(ctx context.Context) ([]models.MailingListEntry, error) {
	var entries []models.MailingListEntry
	err := r.db.WithContext(ctx).
		Where("pushed_at IS NULL").
		Order("email_address").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list unpushed mailing entries: %w", err)
	}
	return entries, nil
}

// MarkPushed stamps entries the provider just accepted.
func (r *Repository) MarkPushed(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&models.MailingListEntry{}).
		Where("id IN ?", ids).
		Update("pushed_at", at.UTC()).Error
	if err != nil {
		return fmt.Errorf("mark mailing entries pushed: %w", err)
	}
	return nil
}
