package mailing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensesync/internal/licenses"
	"github.com/angelmondragon/licensesync/pkg/db/models"
	"github.com/angelmondragon/licensesync/pkg/logger"
	"github.com/angelmondragon/licensesync/pkg/mailer"
	"github.com/angelmondragon/licensesync/pkg/metrics"
)

const (
	entityMailing    = "mailing_list_entry"
	defaultChunkSize = 500

	// merge field the provider template reads the expiry from
	trialExpField = "TRIALEXP"
)

// Pusher is the slice of the mailing-list client the feed needs.
type Pusher interface {
	UpsertMembers(ctx context.Context, members []mailer.Member) (*mailer.UpsertResult, error)
}

// ServiceParams configure the subscriber feed. Pusher is optional: without
// one, entries are still recorded locally and pushed once a provider is
// configured.
type ServiceParams struct {
	Logger    *logger.Logger
	Metrics   *metrics.SyncMetrics
	Repo      *Repository
	Pusher    Pusher
	ChunkSize int
}

// Service derives mailing-list entries from license technical contacts and
// pushes the pending ones downstream in bounded chunks.
type Service struct {
	logg      *logger.Logger
	metrics   *metrics.SyncMetrics
	repo      *Repository
	pusher    Pusher
	chunkSize int
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	chunkSize := params.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Service{
		logg:      params.Logger,
		metrics:   params.Metrics,
		repo:      params.Repo,
		pusher:    params.Pusher,
		chunkSize: chunkSize,
		now:       time.Now,
	}, nil
}

// PublishBatch records a subscriber per technical contact, with the license
// maintenance end date as the trial expiry, then pushes everything the
// provider has not seen yet. Duplicate emails in one batch collapse to the
// latest expiry.
func (s *Service) PublishBatch(ctx context.Context, records []licenses.Record) error {
	wanted := map[string]*time.Time{}
	for _, record := range records {
		email := record.TechEmail()
		if email == "" {
			continue
		}
		end := record.MaintenanceEnd()
		if current, ok := wanted[email]; !ok || extendsTrial(current, end) {
			wanted[email] = end
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	emails := make([]string, 0, len(wanted))
	for email := range wanted {
		emails = append(emails, email)
	}
	sort.Strings(emails)

	upserts := 0
	for _, email := range emails {
		if _, _, err := s.repo.UpsertEntry(ctx, email, wanted[email]); err != nil {
			return fmt.Errorf("upsert mailing entry: %w", err)
		}
		upserts++
	}
	s.metrics.AddRecordsUpserted(entityMailing, upserts)

	if s.pusher == nil {
		s.logg.Info(s.logg.WithField(ctx, "entries", upserts), "mailing provider not configured; entries recorded locally")
		return nil
	}
	return s.pushPending(ctx)
}

func (s *Service) pushPending(ctx context.Context) error {
	pending, err := s.repo.ListUnpushed(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	total := mailer.UpsertResult{}
	for start := 0; start < len(pending); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		members := make([]mailer.Member, 0, len(chunk))
		ids := make([]uuid.UUID, 0, len(chunk))
		for _, entry := range chunk {
			members = append(members, memberOf(entry))
			ids = append(ids, entry.ID)
		}

		result, err := s.pusher.UpsertMembers(ctx, members)
		if err != nil {
			return fmt.Errorf("push mailing chunk: %w", err)
		}
		total.TotalCreated += result.TotalCreated
		total.TotalUpdated += result.TotalUpdated
		total.ErrorCount += result.ErrorCount

		if err := s.repo.MarkPushed(ctx, ids, s.now().UTC()); err != nil {
			return err
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"pushed":  len(pending),
		"created": total.TotalCreated,
		"updated": total.TotalUpdated,
		"errors":  total.ErrorCount,
	}), "mailing entries pushed")
	return nil
}

func memberOf(entry models.MailingListEntry) mailer.Member {
	member := mailer.Member{
		EmailAddress: entry.EmailAddress,
		Status:       entry.Status.String(),
	}
	if entry.TrialExp != nil {
		member.MergeFields = map[string]string{trialExpField: entry.TrialExp.Format(time.DateOnly)}
	}
	return member
}
