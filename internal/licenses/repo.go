package licenses

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensesync/pkg/db"
	"github.com/angelmondragon/licensesync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/licensesync/pkg/errors"
)

// Repository persists the license feed entities. Every upsert addresses a
// row by its natural key and runs find-then-save inside a transaction, so a
// concurrent reader never sees a half-merged row. Generated ids survive
// re-syncs; only attributes and synced_at move.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository binds a GORM DB to the license feed tables.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// UpsertContact inserts or updates the contact addressed by email.
func (r *Repository) UpsertContact(ctx context.Context, contact *models.Contact) (*models.Contact, bool, error) {
	if contact == nil {
		return nil, false, fmt.Errorf("contact is required")
	}
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Contact
		findErr := tx.Where("email = ?", contact.Email).First(&existing).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			created = true
			contact.ID = uuid.New()
		case findErr != nil:
			return findErr
		default:
			contact.ID = existing.ID
		}
		contact.SyncedAt = r.now().UTC()
		return r.write(tx, contact, created, "contact")
	})
	if err != nil {
		return nil, false, err
	}
	return contact, created, nil
}

// UpsertAddon inserts or updates the addon addressed by key.
func (r *Repository) UpsertAddon(ctx context.Context, addon *models.Addon) (*models.Addon, bool, error) {
	if addon == nil {
		return nil, false, fmt.Errorf("addon is required")
	}
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Addon
		findErr := tx.Where("key = ?", addon.Key).First(&existing).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			created = true
			addon.ID = uuid.New()
		case findErr != nil:
			return findErr
		default:
			addon.ID = existing.ID
		}
		addon.SyncedAt = r.now().UTC()
		return r.write(tx, addon, created, "addon")
	})
	if err != nil {
		return nil, false, err
	}
	return addon, created, nil
}

// FindAddonByKey resolves an addon from earlier syncs.
func (r *Repository) FindAddonByKey(ctx context.Context, key string) (*models.Addon, error) {
	var addon models.Addon
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&addon).Error; err != nil {
		return nil, err
	}
	return &addon, nil
}

// UpsertPartnerDetails inserts or updates the partner addressed by the
// (name, type) pair.
func (r *Repository) UpsertPartnerDetails(ctx context.Context, details *models.PartnerDetails) (*models.PartnerDetails, bool, error) {
	if details == nil {
		return nil, false, fmt.Errorf("partner details are required")
	}
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.PartnerDetails
		findErr := tx.Where("name = ? AND type = ?", details.Name, details.Type).First(&existing).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			created = true
			details.ID = uuid.New()
		case findErr != nil:
			return findErr
		default:
			details.ID = existing.ID
		}
		details.SyncedAt = r.now().UTC()
		return r.write(tx, details, created, "partner details")
	})
	if err != nil {
		return nil, false, err
	}
	return details, created, nil
}

// UpsertLicenseContactDetails inserts or updates the contact grouping
// addressed by (company, country, region).
func (r *Repository) UpsertLicenseContactDetails(ctx context.Context, details *models.LicenseContactDetails) (*models.LicenseContactDetails, bool, error) {
	if details == nil {
		return nil, false, fmt.Errorf("license contact details are required")
	}
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.LicenseContactDetails
		findErr := tx.Where("company = ? AND country = ? AND region = ?", details.Company, details.Country, details.Region).First(&existing).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			created = true
			details.ID = uuid.New()
		case findErr != nil:
			return findErr
		default:
			details.ID = existing.ID
		}
		details.SyncedAt = r.now().UTC()
		return r.write(tx, details, created, "license contact details")
	})
	if err != nil {
		return nil, false, err
	}
	return details, created, nil
}

// UpsertLicense inserts or updates the license addressed by the upstream
// license id. The organization link belongs to the enrichment pass, so an
// update keeps whatever organization the stored row already points at.
func (r *Repository) UpsertLicense(ctx context.Context, license *models.License) (*models.License, bool, error) {
	if license == nil {
		return nil, false, fmt.Errorf("license is required")
	}
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.License
		findErr := tx.Where("license_id = ?", license.LicenseID).First(&existing).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			created = true
			license.ID = uuid.New()
		case findErr != nil:
			return findErr
		default:
			license.ID = existing.ID
			license.OrganizationID = existing.OrganizationID
		}
		license.SyncedAt = r.now().UTC()
		return r.write(tx, license, created, "license")
	})
	if err != nil {
		return nil, false, err
	}
	return license, created, nil
}

// write lands the row and maps constraint failures to coded errors: a
// dangling reference only poisons this record, the caller decides whether
// the batch goes on.
func (r *Repository) write(tx *gorm.DB, row any, created bool, entity string) error {
	var err error
	if created {
		err = tx.Create(row).Error
	} else {
		err = tx.Save(row).Error
	}
	if err == nil {
		return nil
	}
	if db.IsForeignKeyViolation(err) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, entity+" references a missing row")
	}
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, entity+" natural key already taken")
	}
	return err
}
