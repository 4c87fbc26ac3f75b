package organizations

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/licensesync/internal/licenses"
	"github.com/angelmondragon/licensesync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/licensesync/pkg/errors"
	"github.com/angelmondragon/licensesync/pkg/logger"
	"github.com/angelmondragon/licensesync/pkg/metrics"
	"github.com/angelmondragon/licensesync/pkg/orgdata"
)

const entityOrganization = "organization"

// Provider is the slice of the org-data client the enrichment needs.
type Provider interface {
	FindByDomain(ctx context.Context, domain string) ([]orgdata.Organization, error)
	FindByName(ctx context.Context, name string) ([]orgdata.Organization, error)
}

// ServiceParams configure organization enrichment. SkipDomains extends the
// built-in consumer ISP list.
type ServiceParams struct {
	Logger      *logger.Logger
	Metrics     *metrics.SyncMetrics
	Provider    Provider
	Repo        *Repository
	SkipDomains []string
}

// Service resolves company profiles for a merged license batch. Lookups key
// on the technical contact's mail domain, falling back to the company name;
// a resolved profile is linked to the company's licenses through their
// contact grouping. Lookup problems are per-company warnings; only the
// database failing aborts the pass.
type Service struct {
	logg     *logger.Logger
	metrics  *metrics.SyncMetrics
	provider Provider
	repo     *Repository
	skip     map[string]struct{}
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("provider required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	skip := make(map[string]struct{}, len(defaultSkipDomains)+len(params.SkipDomains))
	for _, domain := range defaultSkipDomains {
		skip[domain] = struct{}{}
	}
	for _, domain := range params.SkipDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" {
			skip[domain] = struct{}{}
		}
	}
	return &Service{
		logg:     params.Logger,
		metrics:  params.Metrics,
		provider: params.Provider,
		repo:     params.Repo,
		skip:     skip,
	}, nil
}

type enrichTally struct {
	skipped  int
	repeats  int
	failed   int
	missed   int
	stored   int
	linked   int
	unlinked int
}

// EnrichBatch resolves and links an organization for each distinct company
// domain in the batch.
func (s *Service) EnrichBatch(ctx context.Context, records []licenses.Record) error {
	tally := enrichTally{}
	handled := map[string]struct{}{}

	for _, record := range records {
		company := strings.TrimSpace(record.ContactDetails.Company)
		email := record.TechEmail()

		domain := domainFromEmail(email)
		if domain == "" {
			if email != "" {
				s.logg.Warn(s.logg.WithField(ctx, "email", email), "technical contact email has no usable domain")
			}
			tally.skipped++
			continue
		}
		if _, isp := s.skip[strings.ToLower(domain)]; isp {
			tally.skipped++
			continue
		}
		if _, done := handled[domain]; done {
			tally.repeats++
			continue
		}
		handled[domain] = struct{}{}

		if len(company) < 2 {
			tally.skipped++
			continue
		}

		pick, err := s.resolve(ctx, company, domain)
		if err != nil {
			warnCtx := s.logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
			s.logg.Warn(s.logg.WithField(warnCtx, "domain", domain), "organization lookup failed")
			tally.failed++
			continue
		}
		if pick == nil {
			tally.missed++
			continue
		}

		if err := s.store(ctx, company, pick, &tally); err != nil {
			return err
		}
	}

	s.metrics.AddRecordsUpserted(entityOrganization, tally.stored)
	s.metrics.AddRecordsSkipped(entityOrganization, tally.failed+tally.missed)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"records":         len(records),
		"stored":          tally.stored,
		"linked":          tally.linked,
		"unlinked":        tally.unlinked,
		"lookup_failures": tally.failed,
		"lookup_misses":   tally.missed,
		"skipped":         tally.skipped,
		"repeat_domains":  tally.repeats,
	}), "organization enrichment finished")
	return nil
}

// resolve queries by domain first and by company name only when the domain
// search comes back empty, then narrows the candidates to at most one.
func (s *Service) resolve(ctx context.Context, company, domain string) (*orgdata.Organization, error) {
	candidates, err := s.provider.FindByDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		candidates, err = s.provider.FindByName(ctx, company)
		if err != nil {
			return nil, err
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return pickMatch(company, shortenDomain(domain), candidates), nil
}

// store upserts the resolved profile and links the company's licenses. A
// profile that cannot be linked unambiguously is not kept if this pass
// created it: an organization row nothing references is clutter.
func (s *Service) store(ctx context.Context, company string, pick *orgdata.Organization, tally *enrichTally) error {
	if strings.TrimSpace(pick.Name) == "" || strings.TrimSpace(pick.Domain) == "" {
		tally.missed++
		return nil
	}

	row, created, err := s.repo.UpsertOrganization(ctx, organizationModel(pick))
	if err != nil {
		return fmt.Errorf("upsert organization: %w", err)
	}
	tally.stored++

	groupIDs, err := s.repo.ContactGroupIDsByCompany(ctx, company)
	if err != nil {
		return err
	}
	if len(groupIDs) != 1 {
		if created {
			if err := s.repo.DeleteIfUnreferenced(ctx, row.ID); err != nil {
				return err
			}
		}
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"company": company,
			"groups":  len(groupIDs),
		}), "organization left unlinked; company does not map to exactly one contact grouping")
		tally.unlinked++
		return nil
	}

	if _, err := s.repo.LinkLicenses(ctx, groupIDs[0], row.ID); err != nil {
		return err
	}
	tally.linked++
	return nil
}

func organizationModel(pick *orgdata.Organization) *models.Organization {
	return &models.Organization{
		Domain:           strings.TrimRight(strings.TrimSpace(pick.Domain), "/"),
		Name:             strings.TrimSpace(pick.Name),
		PrimaryRole:      optional(pick.PrimaryRole),
		ShortDescription: optional(pick.ShortDescription),
		HomepageURL:      optional(pick.HomepageURL),
		FacebookURL:      optional(pick.FacebookURL),
		TwitterURL:       optional(pick.TwitterURL),
		LinkedinURL:      optional(pick.LinkedinURL),
		APIURL:           optional(pick.APIURL),
		City:             optional(pick.City),
		Region:           optional(pick.Region),
		Country:          optional(pick.Country),
		StockExchange:    optional(pick.StockExchange),
		StockSymbol:      optional(pick.StockSymbol),
		SourceCreatedAt:  optionalEpoch(pick.CreatedAt),
		SourceUpdatedAt:  optionalEpoch(pick.UpdatedAt),
	}
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func optionalEpoch(value int64) *int64 {
	if value == 0 {
		return nil
	}
	return &value
}
