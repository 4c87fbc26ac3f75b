package organizations

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

// Repository persists enrichment results. Organizations are keyed by domain;
// licenses are linked through their contact grouping.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(database *gorm.DB) *Repository {
	return &Repository{db: database, now: time.Now}
}

// UpsertOrganization inserts or refreshes the profile stored under the
// organization's domain. The row identifier is stable across refreshes.
func (r *Repository) UpsertOrganization(ctx context.Context, org *models.Organization) (*models.Organization, bool, error) {
	var created bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Organization
		findErr := tx.Where("domain = ?", org.Domain).First(&existing).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			created = true
			org.ID = uuid.New()
		case findErr != nil:
			return fmt.Errorf("find organization: %w", findErr)
		default:
			org.ID = existing.ID
		}
		org.SyncedAt = r.now().UTC()
		if created {
			if err := tx.Create(org).Error; err != nil {
				return writeError(err)
			}
			return nil
		}
		if err := tx.Save(org).Error; err != nil {
			return writeError(err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return org, created, nil
}

func writeError(err error) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "organization domain already taken")
	}
	return err
}

// ContactGroupIDsByCompany lists the contact groupings recorded under a
// company name. Linking only proceeds when exactly one comes back.
func (r *Repository) ContactGroupIDsByCompany(ctx context.Context, company string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.LicenseContactDetails{}).
		Where("company = ?", company).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list contact groups: %w", err)
	}
	return ids, nil
}

// LinkLicenses points every license under the contact grouping at the
// organization. Returns how many rows moved.
func (r *Repository) LinkLicenses(ctx context.Context, groupID, orgID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.License{}).
		Where("license_contact_details_id = ?", groupID).
		Update("organization_id", orgID)
	if res.Error != nil {
		return 0, fmt.Errorf("link licenses: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteIfUnreferenced removes an organization no license points at. Used to
// take back a freshly inserted profile that could not be linked.
func (r *Repository) DeleteIfUnreferenced(ctx context.Context, orgID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("id = ? AND NOT EXISTS (SELECT 1 FROM licenses WHERE organization_id = ?)", orgID, orgID).
		Delete(&models.Organization{}).Error
	if err != nil {
		return fmt.Errorf("delete unlinked organization: %w", err)
	}
	return nil
}
