// Package admin exposes runtime settings and mailbox sync control.
package admin

import (
	"context"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
)

// LatchResetter clears an in-process failure latch for a mailbox. The
// worker registers its poller here; the API side may run without one.
type LatchResetter interface {
	ResetLatch(mailbox string)
}

// Service implements the settings and sync-control inbound ports.
type Service struct {
	settings out.SettingsRepository
	sync     out.SyncStateRepository
	latches  LatchResetter
	log      *logger.Logger
}

func NewService(settings out.SettingsRepository, sync out.SyncStateRepository, latches LatchResetter) *Service {
	return &Service{
		settings: settings,
		sync:     sync,
		latches:  latches,
		log:      logger.Default().WithField("component", "admin_service"),
	}
}

var (
	_ in.SettingsService = (*Service)(nil)
	_ in.SyncService     = (*Service)(nil)
)

func (s *Service) Get(ctx context.Context) (*domain.PipelineSettings, error) {
	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, apperr.DatabaseError("load settings", err)
	}
	if settings == nil {
		settings = domain.DefaultPipelineSettings()
	}
	return settings, nil
}

func (s *Service) Update(ctx context.Context, settings *domain.PipelineSettings, updatedBy string) (*domain.PipelineSettings, error) {
	if settings.ConfidenceThreshold < 0 || settings.ConfidenceThreshold > 1 {
		return nil, apperr.BadRequest("confidence_threshold must be in [0,1]")
	}
	if settings.MinSimilarity < 0 || settings.MinSimilarity > 1 {
		return nil, apperr.BadRequest("min_similarity must be in [0,1]")
	}
	if settings.RetrievalTopN <= 0 {
		return nil, apperr.BadRequest("retrieval_top_n must be positive")
	}
	if err := s.settings.Save(ctx, settings, updatedBy); err != nil {
		return nil, apperr.DatabaseError("save settings", err)
	}
	s.log.Info("pipeline settings updated by %s (autosend=%t threshold=%.2f)", updatedBy, settings.AutosendEnabled, settings.ConfidenceThreshold)
	return s.Get(ctx)
}

func (s *Service) ListMailboxes(ctx context.Context) ([]*domain.MailboxSyncState, error) {
	states, err := s.sync.List(ctx)
	if err != nil {
		return nil, apperr.DatabaseError("list sync states", err)
	}
	return states, nil
}

// ResetMailbox clears the persisted suspension and, when a poller is
// registered in this process, its in-memory latch too.
func (s *Service) ResetMailbox(ctx context.Context, mailbox string) error {
	if err := s.sync.Reset(ctx, mailbox); err != nil {
		return apperr.DatabaseError("reset sync state", err)
	}
	if s.latches != nil {
		s.latches.ResetLatch(mailbox)
	}
	s.log.Info("mailbox %s polling reset", mailbox)
	return nil
}
