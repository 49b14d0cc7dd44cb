package thread

import (
	"context"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
)

// Service exposes thread inspection and manual lifecycle actions to the
// API layer.
type Service struct {
	threads  out.ThreadRepository
	messages out.MessageRepository
	events   out.EventRepository
	machine  *StateMachine
	log      *logger.Logger
}

func NewService(threads out.ThreadRepository, messages out.MessageRepository, events out.EventRepository, machine *StateMachine) *Service {
	return &Service{
		threads:  threads,
		messages: messages,
		events:   events,
		machine:  machine,
		log:      logger.Default().WithField("component", "thread_service"),
	}
}

var _ in.ThreadService = (*Service)(nil)

func (s *Service) List(ctx context.Context, filter *domain.ThreadFilter) ([]*domain.Thread, int, error) {
	threads, total, err := s.threads.List(ctx, filter)
	if err != nil {
		return nil, 0, apperr.DatabaseError("list threads", err)
	}
	return threads, total, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*in.ThreadDetail, error) {
	t, err := s.threads.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.DatabaseError("load thread", err)
	}
	if t == nil {
		return nil, apperr.NotFound("thread")
	}
	messages, err := s.messages.ListByThread(ctx, id, 100)
	if err != nil {
		return nil, apperr.DatabaseError("load messages", err)
	}
	events, err := s.events.ListByThread(ctx, id, 100)
	if err != nil {
		return nil, apperr.DatabaseError("load events", err)
	}
	return &in.ThreadDetail{Thread: t, Messages: messages, Events: events}, nil
}

// Events returns the audit trail with known payload kinds decoded, the
// explainability view behind "why did the bot do that".
func (s *Service) Events(ctx context.Context, threadID int64, limit int) ([]*in.DecodedEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	events, err := s.events.ListByThread(ctx, threadID, limit)
	if err != nil {
		return nil, apperr.DatabaseError("load events", err)
	}
	decoded := make([]*in.DecodedEvent, 0, len(events))
	for _, e := range events {
		d := &in.DecodedEvent{Event: e}
		if payload, ok := e.DecodePayload(); ok {
			d.Decoded = payload
		}
		decoded = append(decoded, d)
	}
	return decoded, nil
}

func (s *Service) Escalate(ctx context.Context, threadID int64, reason string) (*domain.Thread, error) {
	return s.applyTrigger(ctx, threadID, domain.TriggerEscalate, reason)
}

func (s *Service) Resolve(ctx context.Context, threadID int64, reason string) (*domain.Thread, error) {
	t, err := s.applyTrigger(ctx, threadID, domain.TriggerResolve, reason)
	if err != nil {
		return nil, err
	}
	if err := s.threads.SetResolved(ctx, threadID, time.Now().UTC()); err != nil {
		s.log.WithThread(threadID).WithError(err).Error("failed to stamp resolution time")
	}
	return t, nil
}

func (s *Service) PurgeEvents(ctx context.Context, threadID int64) (int64, error) {
	purged, err := s.events.PurgeByThread(ctx, threadID)
	if err != nil {
		return 0, apperr.DatabaseError("purge events", err)
	}
	s.log.WithThread(threadID).Warn("purged %d audit events", purged)
	return purged, nil
}

func (s *Service) applyTrigger(ctx context.Context, threadID int64, trigger domain.Trigger, reason string) (*domain.Thread, error) {
	t, err := s.threads.GetByID(ctx, threadID)
	if err != nil {
		return nil, apperr.DatabaseError("load thread", err)
	}
	if t == nil {
		return nil, apperr.NotFound("thread")
	}
	if _, err := s.machine.Apply(ctx, t, trigger, reason); err != nil {
		return nil, err
	}
	return t, nil
}
