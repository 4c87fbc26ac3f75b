package licenses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensesync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/licensesync/pkg/errors"
	"github.com/angelmondragon/licensesync/pkg/logger"
	"github.com/angelmondragon/licensesync/pkg/metrics"
)

// Entity labels for the batch report and metrics.
const (
	entityContact        = "contact"
	entityAddon          = "addon"
	entityPartnerDetails = "partner_details"
	entityContactGroup   = "license_contact_details"
	entityLicense        = "license"
)

var entityOrder = []string{entityContact, entityAddon, entityPartnerDetails, entityContactGroup, entityLicense}

// BatchEnricher resolves organization profiles for a merged batch and links
// them to the licenses that landed.
type BatchEnricher interface {
	EnrichBatch(ctx context.Context, records []Record) error
}

// MailingFeed derives mailing entries from a merged batch and pushes them
// downstream.
type MailingFeed interface {
	PublishBatch(ctx context.Context, records []Record) error
}

// LoaderParams configure the load stage. Enricher and Mailing are optional;
// the merge itself never depends on them.
type LoaderParams struct {
	Logger   *logger.Logger
	Metrics  *metrics.SyncMetrics
	Repo     *Repository
	Enricher BatchEnricher
	Mailing  MailingFeed
}

// Loader merges an export artifact into the database in three passes:
// contacts, addons and partners first, then contact groupings, then the
// licenses that reference them. A record that cannot be merged is skipped
// and reported; a storage failure aborts the batch so a dead database can
// never read as a clean run.
type Loader struct {
	logg     *logger.Logger
	metrics  *metrics.SyncMetrics
	repo     *Repository
	enricher BatchEnricher
	mailing  MailingFeed
}

// NewLoader builds the load stage.
func NewLoader(params LoaderParams) (*Loader, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	return &Loader{
		logg:     params.Logger,
		metrics:  params.Metrics,
		repo:     params.Repo,
		enricher: params.Enricher,
		mailing:  params.Mailing,
	}, nil
}

// Load reads the artifact and merges every record it holds. An empty export
// is a valid no-op; a missing or corrupt artifact fails the cycle.
func (l *Loader) Load(ctx context.Context, inputPath string) error {
	records, err := readArtifact(inputPath)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		l.logg.Info(ctx, "artifact holds no records; nothing to merge")
		return nil
	}

	batch := newBatchReport()
	valid := make([]Record, 0, len(records))
	for _, record := range records {
		if err := ValidateRecord(record); err != nil {
			batch.skip(entityLicense, describeRecord(record, err))
			continue
		}
		valid = append(valid, record)
	}

	state := newLoadState()
	if err := l.upsertContacts(ctx, valid, state, batch); err != nil {
		return err
	}
	if err := l.upsertAddons(ctx, valid, state, batch); err != nil {
		return err
	}
	if err := l.upsertPartners(ctx, valid, state, batch); err != nil {
		return err
	}
	if err := l.upsertContactGroups(ctx, valid, state, batch); err != nil {
		return err
	}
	if err := l.upsertLicenses(ctx, valid, state, batch); err != nil {
		return err
	}
	l.report(ctx, len(records), batch)

	if l.enricher != nil {
		if err := l.enricher.EnrichBatch(ctx, valid); err != nil {
			return fmt.Errorf("organization enrichment: %w", err)
		}
	}
	if l.mailing != nil {
		if err := l.mailing.PublishBatch(ctx, valid); err != nil {
			// License rows are committed by now; the mailing provider being
			// down must not fail the cycle.
			warnCtx := l.logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
			l.logg.Warn(warnCtx, "mailing feed failed")
		}
	}
	return nil
}

func readArtifact(path string) ([]Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "export artifact missing")
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "export artifact corrupt")
	}
	return records, nil
}

// Pass one, contacts: every reachable person in the batch lands first so
// later passes can resolve them by email.
func (l *Loader) upsertContacts(ctx context.Context, records []Record, state *loadState, batch *batchReport) error {
	for _, record := range records {
		people := []ContactRecord{record.ContactDetails.TechnicalContact}
		if record.ContactDetails.BillingContact != nil {
			people = append(people, *record.ContactDetails.BillingContact)
		}
		for _, person := range people {
			email := normalizeEmail(person.Email)
			if email == "" {
				continue
			}
			row, created, err := l.repo.UpsertContact(ctx, contactModel(email, person))
			if err != nil {
				if skippable(err) {
					batch.skip(entityContact, err)
					continue
				}
				return fmt.Errorf("upsert contact: %w", err)
			}
			state.contacts[email] = row.ID
			batch.upsert(entityContact, created)
		}
	}
	return nil
}

// Pass one, addons: a record with no addon name cannot create the addon
// row (the name is mandatory there) but may still resolve against an addon
// from an earlier sync at the license pass.
func (l *Loader) upsertAddons(ctx context.Context, records []Record, state *loadState, batch *batchReport) error {
	for _, record := range records {
		key := strings.TrimSpace(record.AddonKey)
		name := strings.TrimSpace(record.AddonName)
		if key == "" || name == "" {
			continue
		}
		if known, ok := state.addons[key]; ok && known.Name == name {
			continue
		}
		row, created, err := l.repo.UpsertAddon(ctx, &models.Addon{Key: key, Name: name})
		if err != nil {
			if skippable(err) {
				batch.skip(entityAddon, err)
				continue
			}
			return fmt.Errorf("upsert addon: %w", err)
		}
		state.addons[key] = row
		batch.upsert(entityAddon, created)
	}
	return nil
}

// Pass one, partners.
func (l *Loader) upsertPartners(ctx context.Context, records []Record, state *loadState, batch *batchReport) error {
	for _, record := range records {
		partner := record.PartnerDetails
		if partner == nil {
			continue
		}
		name := strings.TrimSpace(partner.PartnerName)
		if name == "" {
			continue
		}
		details := &models.PartnerDetails{
			Name: name,
			Type: strings.TrimSpace(partner.PartnerType),
		}
		if partner.BillingContact != nil {
			details.BillContactName = optional(partner.BillingContact.Name)
			details.BillContactEmail = optional(partner.BillingContact.Email)
		}
		row, created, err := l.repo.UpsertPartnerDetails(ctx, details)
		if err != nil {
			if skippable(err) {
				batch.skip(entityPartnerDetails, err)
				continue
			}
			return fmt.Errorf("upsert partner details: %w", err)
		}
		state.partners[partnerKey{name: row.Name, partnerType: row.Type}] = row.ID
		batch.upsert(entityPartnerDetails, created)
	}
	return nil
}

// Pass two, contact groupings: the (company, country, region) key must be
// complete, partial keys leave the license without a grouping rather than
// inventing one.
func (l *Loader) upsertContactGroups(ctx context.Context, records []Record, state *loadState, batch *batchReport) error {
	for _, record := range records {
		details := record.ContactDetails
		key := groupKeyOf(details)
		if key == (groupKey{}) {
			continue
		}
		techID, ok := state.contacts[normalizeEmail(details.TechnicalContact.Email)]
		if !ok {
			batch.skip(entityContactGroup, pkgerrors.New(pkgerrors.CodeNotFound, "technical contact missing for contact grouping").WithDetails(map[string]string{"company": key.company}))
			continue
		}
		group := &models.LicenseContactDetails{
			Company:       key.company,
			Country:       key.country,
			Region:        key.region,
			TechContactID: techID,
		}
		if details.BillingContact != nil {
			if billID, found := state.contacts[normalizeEmail(details.BillingContact.Email)]; found {
				group.BillContactID = &billID
			}
		}
		row, created, err := l.repo.UpsertLicenseContactDetails(ctx, group)
		if err != nil {
			if skippable(err) {
				batch.skip(entityContactGroup, err)
				continue
			}
			return fmt.Errorf("upsert license contact details: %w", err)
		}
		state.groups[key] = row.ID
		batch.upsert(entityContactGroup, created)
	}
	return nil
}

// Pass three, licenses.
func (l *Loader) upsertLicenses(ctx context.Context, records []Record, state *loadState, batch *batchReport) error {
	for _, record := range records {
		addon, err := l.resolveAddon(ctx, state, record.AddonKey)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				batch.skip(entityLicense, describeRecord(record, pkgerrors.New(pkgerrors.CodeNotFound, "license references an unknown addon")))
				continue
			}
			return fmt.Errorf("resolve addon: %w", err)
		}
		license, err := licenseModel(record, addon, state)
		if err != nil {
			batch.skip(entityLicense, describeRecord(record, err))
			continue
		}
		_, created, err := l.repo.UpsertLicense(ctx, license)
		if err != nil {
			if skippable(err) {
				batch.skip(entityLicense, describeRecord(record, err))
				continue
			}
			return fmt.Errorf("upsert license: %w", err)
		}
		batch.upsert(entityLicense, created)
	}
	return nil
}

func (l *Loader) resolveAddon(ctx context.Context, state *loadState, rawKey string) (*models.Addon, error) {
	key := strings.TrimSpace(rawKey)
	if addon, ok := state.addons[key]; ok {
		return addon, nil
	}
	addon, err := l.repo.FindAddonByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	state.addons[key] = addon
	return addon, nil
}

func licenseModel(record Record, addon *models.Addon, state *loadState) (*models.License, error) {
	lastUpdated, err := parseDate(record.LastUpdated)
	if err != nil {
		return nil, invalidDate("lastUpdated", record.LastUpdated)
	}
	start, err := parseDate(record.MaintenanceStartDate)
	if err != nil {
		return nil, invalidDate("maintenanceStartDate", record.MaintenanceStartDate)
	}
	end, err := parseDate(record.MaintenanceEndDate)
	if err != nil {
		return nil, invalidDate("maintenanceEndDate", record.MaintenanceEndDate)
	}
	license := &models.License{
		LicenseID:            strings.TrimSpace(record.LicenseID),
		AddonID:              addon.ID,
		AddonKey:             addon.Key,
		Hosting:              optional(record.Hosting),
		HostLicenseID:        optional(record.HostLicenseID),
		SourceLastUpdated:    lastUpdated,
		LicenseType:          optional(record.LicenseType),
		MaintenanceStartDate: start,
		MaintenanceEndDate:   end,
		Status:               optional(record.Status),
		Tier:                 optional(record.Tier),
	}
	if groupID, ok := state.groups[groupKeyOf(record.ContactDetails)]; ok {
		license.LicenseContactDetailsID = &groupID
	}
	if record.PartnerDetails != nil {
		key := partnerKey{
			name:        strings.TrimSpace(record.PartnerDetails.PartnerName),
			partnerType: strings.TrimSpace(record.PartnerDetails.PartnerType),
		}
		if partnerID, ok := state.partners[key]; ok {
			license.PartnerDetailsID = &partnerID
		}
	}
	return license, nil
}

func contactModel(email string, person ContactRecord) *models.Contact {
	return &models.Contact{
		Email:    email,
		Name:     optional(person.Name),
		Phone:    optional(person.Phone),
		Address1: optional(person.Address1),
		Address2: optional(person.Address2),
		City:     optional(person.City),
		State:    optional(person.State),
		Postcode: optional(person.Postcode),
	}
}

func invalidDate(field, value string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "license carries an unreadable date").WithDetails(map[string]string{field: value})
}

func describeRecord(record Record, err error) error {
	return fmt.Errorf("license %q: %w", record.LicenseID, err)
}

// skippable reports whether an error poisons only the current record.
func skippable(err error) bool {
	return pkgerrors.HasCode(err, pkgerrors.CodeValidation) || pkgerrors.HasCode(err, pkgerrors.CodeNotFound)
}

type partnerKey struct {
	name        string
	partnerType string
}

type groupKey struct {
	company string
	country string
	region  string
}

func groupKeyOf(details ContactDetailsRecord) groupKey {
	company := strings.TrimSpace(details.Company)
	country := strings.TrimSpace(details.Country)
	region := strings.TrimSpace(details.Region)
	if company == "" || country == "" || region == "" {
		return groupKey{}
	}
	return groupKey{company: company, country: country, region: region}
}

type loadState struct {
	contacts map[string]uuid.UUID
	addons   map[string]*models.Addon
	partners map[partnerKey]uuid.UUID
	groups   map[groupKey]uuid.UUID
}

func newLoadState() *loadState {
	return &loadState{
		contacts: map[string]uuid.UUID{},
		addons:   map[string]*models.Addon{},
		partners: map[partnerKey]uuid.UUID{},
		groups:   map[groupKey]uuid.UUID{},
	}
}

type batchReport struct {
	inserted map[string]int
	updated  map[string]int
	skipped  map[string]int
	skipErr  error
}

func newBatchReport() *batchReport {
	return &batchReport{
		inserted: map[string]int{},
		updated:  map[string]int{},
		skipped:  map[string]int{},
	}
}

func (b *batchReport) upsert(entity string, created bool) {
	if created {
		b.inserted[entity]++
	} else {
		b.updated[entity]++
	}
}

func (b *batchReport) skip(entity string, err error) {
	b.skipped[entity]++
	b.skipErr = multierr.Append(b.skipErr, err)
}

func (l *Loader) report(ctx context.Context, total int, batch *batchReport) {
	fields := map[string]any{"records": total}
	for _, entity := range entityOrder {
		fields[entity+"_inserted"] = batch.inserted[entity]
		fields[entity+"_updated"] = batch.updated[entity]
		fields[entity+"_skipped"] = batch.skipped[entity]
		l.metrics.AddRecordsUpserted(entity, batch.inserted[entity]+batch.updated[entity])
		l.metrics.AddRecordsSkipped(entity, batch.skipped[entity])
	}
	l.logg.Info(l.logg.WithFields(ctx, fields), "batch merged")
	for _, skipErr := range multierr.Errors(batch.skipErr) {
		l.logg.Warn(l.logg.WithFields(ctx, pkgerrors.Dump(skipErr).Fields()), "record skipped")
	}
}
