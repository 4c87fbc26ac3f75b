package licenses

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensesync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/licensesync/pkg/errors"
)

func setupSyncTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:licenses_" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	contacts := `
CREATE TABLE IF NOT EXISTS contacts (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT,
  phone TEXT,
  address1 TEXT,
  address2 TEXT,
  city TEXT,
  state TEXT,
  postcode TEXT,
  synced_at DATETIME NOT NULL
);`
	addons := `
CREATE TABLE IF NOT EXISTS addons (
  id TEXT PRIMARY KEY,
  key TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL UNIQUE,
  synced_at DATETIME NOT NULL
);`
	organizations := `
CREATE TABLE IF NOT EXISTS organizations (
  id TEXT PRIMARY KEY,
  domain TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  primary_role TEXT,
  short_description TEXT,
  homepage_url TEXT,
  facebook_url TEXT,
  twitter_url TEXT,
  linkedin_url TEXT,
  api_url TEXT,
  city TEXT,
  region TEXT,
  country TEXT,
  stock_exchange TEXT,
  stock_symbol TEXT,
  source_created_at INTEGER,
  source_updated_at INTEGER,
  synced_at DATETIME NOT NULL
);`
	partnerDetails := `
CREATE TABLE IF NOT EXISTS partner_details (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  type TEXT NOT NULL,
  bill_contact_name TEXT,
  bill_contact_email TEXT,
  synced_at DATETIME NOT NULL,
  UNIQUE (name, type)
);`
	contactGroups := `
CREATE TABLE IF NOT EXISTS license_contact_details (
  id TEXT PRIMARY KEY,
  company TEXT NOT NULL,
  country TEXT NOT NULL,
  region TEXT NOT NULL,
  bill_contact_id TEXT REFERENCES contacts (id) ON UPDATE CASCADE ON DELETE CASCADE,
  tech_contact_id TEXT NOT NULL REFERENCES contacts (id) ON UPDATE CASCADE ON DELETE CASCADE,
  synced_at DATETIME NOT NULL,
  UNIQUE (company, country, region)
);`
	licenses := `
CREATE TABLE IF NOT EXISTS licenses (
  id TEXT PRIMARY KEY,
  license_id TEXT NOT NULL UNIQUE,
  addon_id TEXT NOT NULL REFERENCES addons (id) ON UPDATE CASCADE ON DELETE CASCADE,
  addon_key TEXT NOT NULL,
  license_contact_details_id TEXT REFERENCES license_contact_details (id) ON UPDATE CASCADE ON DELETE CASCADE,
  partner_details_id TEXT REFERENCES partner_details (id) ON UPDATE CASCADE ON DELETE CASCADE,
  organization_id TEXT REFERENCES organizations (id) ON UPDATE CASCADE ON DELETE CASCADE,
  hosting TEXT,
  host_license_id TEXT,
  source_last_updated DATETIME,
  license_type TEXT,
  maintenance_start_date DATETIME,
  maintenance_end_date DATETIME,
  status TEXT,
  tier TEXT,
  synced_at DATETIME NOT NULL
);`
	mailingEntries := `
CREATE TABLE IF NOT EXISTS mailing_list_entries (
  id TEXT PRIMARY KEY,
  email_address TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'subscribed',
  trial_exp DATETIME,
  pushed_at DATETIME,
  synced_at DATETIME NOT NULL
);`
	for _, stmt := range []string{contacts, addons, organizations, partnerDetails, contactGroups, licenses, mailingEntries} {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func strPtr(v string) *string { return &v }

func TestUpsertContactCreatesThenUpdatesInPlace(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first, created, err := repo.UpsertContact(ctx, &models.Contact{
		Email: "ana@example.com",
		Name:  strPtr("Ana"),
		City:  strPtr("Oslo"),
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.False(t, first.SyncedAt.IsZero())

	second, created, err := repo.UpsertContact(ctx, &models.Contact{
		Email: "ana@example.com",
		Name:  strPtr("Ana Larsen"),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	var rows []models.Contact
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Name)
	assert.Equal(t, "Ana Larsen", *rows[0].Name)
	// The merge is a full snapshot: attributes absent upstream are cleared.
	assert.Nil(t, rows[0].City)
}

func TestUpsertAddonKeepsIDAcrossRename(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first, created, err := repo.UpsertAddon(ctx, &models.Addon{Key: "com.example.timesheets", Name: "Timesheets"})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := repo.UpsertAddon(ctx, &models.Addon{Key: "com.example.timesheets", Name: "Timesheets Pro"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	found, err := repo.FindAddonByKey(ctx, "com.example.timesheets")
	require.NoError(t, err)
	assert.Equal(t, "Timesheets Pro", found.Name)

	var count int64
	require.NoError(t, db.Model(&models.Addon{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpsertPartnerDetailsKeyedByNameAndType(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	reseller, created, err := repo.UpsertPartnerDetails(ctx, &models.PartnerDetails{Name: "Acme Partners", Type: "Reseller"})
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = repo.UpsertPartnerDetails(ctx, &models.PartnerDetails{Name: "Acme Partners", Type: "Expert"})
	require.NoError(t, err)
	assert.True(t, created, "a second type is a second partner row")

	again, created, err := repo.UpsertPartnerDetails(ctx, &models.PartnerDetails{
		Name:             "Acme Partners",
		Type:             "Reseller",
		BillContactEmail: strPtr("billing@acme.example"),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, reseller.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&models.PartnerDetails{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestUpsertLicensePreservesOrganizationLink(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	addon, _, err := repo.UpsertAddon(ctx, &models.Addon{Key: "com.example.timesheets", Name: "Timesheets"})
	require.NoError(t, err)

	license := &models.License{
		LicenseID: "SEN-100",
		AddonID:   addon.ID,
		AddonKey:  addon.Key,
		Tier:      strPtr("50 Users"),
	}
	_, created, err := repo.UpsertLicense(ctx, license)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, license.OrganizationID)

	org := &models.Organization{ID: uuid.New(), Domain: "example.com", Name: "Example Inc", SyncedAt: time.Now().UTC()}
	require.NoError(t, db.Create(org).Error)
	require.NoError(t, db.Model(&models.License{}).Where("license_id = ?", "SEN-100").Update("organization_id", org.ID).Error)

	// The export artifact never carries the organization; a re-sync must not
	// wipe the link the enrichment pass created.
	merged, created, err := repo.UpsertLicense(ctx, &models.License{
		LicenseID: "SEN-100",
		AddonID:   addon.ID,
		AddonKey:  addon.Key,
		Tier:      strPtr("100 Users"),
	})
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, merged.OrganizationID)
	assert.Equal(t, org.ID, *merged.OrganizationID)

	var stored models.License
	require.NoError(t, db.Where("license_id = ?", "SEN-100").First(&stored).Error)
	require.NotNil(t, stored.OrganizationID)
	assert.Equal(t, org.ID, *stored.OrganizationID)
	require.NotNil(t, stored.Tier)
	assert.Equal(t, "100 Users", *stored.Tier)
}

func TestUpsertLicenseRejectsDanglingAddon(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewRepository(db)

	_, _, err := repo.UpsertLicense(context.Background(), &models.License{
		LicenseID: "SEN-404",
		AddonID:   uuid.New(),
		AddonKey:  "com.example.ghost",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "foreign key failure should poison only the record: %v", err)
}

func TestContactDeleteCascadesThroughGroupToLicense(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	tech, _, err := repo.UpsertContact(ctx, &models.Contact{Email: "tech@corp.example"})
	require.NoError(t, err)
	group, _, err := repo.UpsertLicenseContactDetails(ctx, &models.LicenseContactDetails{
		Company:       "Corp",
		Country:       "Norway",
		Region:        "EMEA",
		TechContactID: tech.ID,
	})
	require.NoError(t, err)
	addon, _, err := repo.UpsertAddon(ctx, &models.Addon{Key: "com.example.timesheets", Name: "Timesheets"})
	require.NoError(t, err)
	_, _, err = repo.UpsertLicense(ctx, &models.License{
		LicenseID:               "SEN-200",
		AddonID:                 addon.ID,
		AddonKey:                addon.Key,
		LicenseContactDetailsID: &group.ID,
	})
	require.NoError(t, err)

	require.NoError(t, db.Delete(&models.Contact{}, "id = ?", tech.ID).Error)

	var groups, licenses int64
	require.NoError(t, db.Model(&models.LicenseContactDetails{}).Count(&groups).Error)
	require.NoError(t, db.Model(&models.License{}).Count(&licenses).Error)
	assert.EqualValues(t, 0, groups, "group should fall with its technical contact")
	assert.EqualValues(t, 0, licenses, "license should fall with its group")
}

func TestUpsertLicenseContactDetailsMergesBillingContact(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	tech, _, err := repo.UpsertContact(ctx, &models.Contact{Email: "tech@corp.example"})
	require.NoError(t, err)
	bill, _, err := repo.UpsertContact(ctx, &models.Contact{Email: "billing@corp.example"})
	require.NoError(t, err)

	first, created, err := repo.UpsertLicenseContactDetails(ctx, &models.LicenseContactDetails{
		Company:       "Corp",
		Country:       "Norway",
		Region:        "EMEA",
		TechContactID: tech.ID,
		BillContactID: &bill.ID,
	})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := repo.UpsertLicenseContactDetails(ctx, &models.LicenseContactDetails{
		Company:       "Corp",
		Country:       "Norway",
		Region:        "EMEA",
		TechContactID: tech.ID,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	var stored models.LicenseContactDetails
	require.NoError(t, db.Where("company = ?", "Corp").First(&stored).Error)
	assert.Nil(t, stored.BillContactID, "billing contact absent upstream clears the link")
	assert.Equal(t, tech.ID, stored.TechContactID)
}

func TestRepositorySetsSyncedAtFromClock(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewRepository(db)
	frozen := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return frozen }

	contact, _, err := repo.UpsertContact(context.Background(), &models.Contact{Email: "clock@example.com"})
	require.NoError(t, err)
	assert.True(t, contact.SyncedAt.Equal(frozen))
}
