// Package observation tracks human takeover of threads.
package observation

import (
	"context"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/core/service/thread"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
)

// Tracker opens and closes observations. At most one observation is
// open per thread; the open observation doubles as the guard that keeps
// automation off the thread.
type Tracker struct {
	observations out.ObservationRepository
	threads      out.ThreadRepository
	events       out.EventRepository
	machine      *thread.StateMachine
	log          *logger.Logger
}

func NewTracker(observations out.ObservationRepository, threads out.ThreadRepository, events out.EventRepository, machine *thread.StateMachine) *Tracker {
	return &Tracker{
		observations: observations,
		threads:      threads,
		events:       events,
		machine:      machine,
		log:          logger.Default().WithField("component", "observation_tracker"),
	}
}

var _ in.ObservationService = (*Tracker)(nil)

// Enter opens an observation and flips the thread into HUMAN_HANDLING.
// Fails when an observation is already open.
func (t *Tracker) Enter(ctx context.Context, threadID int64, handler string) (*domain.Observation, error) {
	th, err := t.threads.GetByID(ctx, threadID)
	if err != nil {
		return nil, apperr.DatabaseError("load thread", err)
	}
	if th == nil {
		return nil, apperr.NotFound("thread")
	}

	open, err := t.observations.GetOpenByThread(ctx, threadID)
	if err != nil {
		return nil, apperr.DatabaseError("load open observation", err)
	}
	if open != nil {
		return nil, apperr.ObservationOpen(threadID)
	}

	if _, err := t.machine.Apply(ctx, th, domain.TriggerHumanTakeover, "handler "+handler+" took over"); err != nil {
		return nil, err
	}

	obs := &domain.Observation{
		ThreadID:          threadID,
		Handler:           handler,
		InterventionStart: time.Now().UTC(),
		CreatedAt:         time.Now().UTC(),
	}
	if err := t.observations.Create(ctx, obs); err != nil {
		return nil, apperr.DatabaseError("create observation", err)
	}

	t.recordEvent(ctx, threadID, domain.EventObservationOpened, domain.ObservationOpenedPayload{
		ObservationID: obs.ID,
		Handler:       handler,
	})
	t.log.WithThread(threadID).Info("observation %d opened by %s", obs.ID, handler)
	return obs, nil
}

// Exit closes the open observation with a resolution and hands the
// thread back to automation. Fails when no observation is open.
func (t *Tracker) Exit(ctx context.Context, threadID int64, resolution domain.ResolutionClass, summary *domain.ObservationSummary) (*domain.Observation, error) {
	th, err := t.threads.GetByID(ctx, threadID)
	if err != nil {
		return nil, apperr.DatabaseError("load thread", err)
	}
	if th == nil {
		return nil, apperr.NotFound("thread")
	}

	open, err := t.observations.GetOpenByThread(ctx, threadID)
	if err != nil {
		return nil, apperr.DatabaseError("load open observation", err)
	}
	if open == nil {
		return nil, apperr.NoObservation(threadID)
	}

	end := time.Now().UTC()
	if err := t.observations.Close(ctx, open.ID, end, resolution, summary); err != nil {
		return nil, apperr.DatabaseError("close observation", err)
	}
	open.InterventionEnd = &end
	open.Resolution = &resolution
	open.Summary = summary

	t.recordEvent(ctx, threadID, domain.EventObservationClosed, domain.ObservationClosedPayload{
		ObservationID: open.ID,
		Resolution:    string(resolution),
	})

	if _, err := t.machine.Apply(ctx, th, domain.TriggerHumanHandback, "observation closed: "+string(resolution)); err != nil {
		t.log.WithThread(threadID).WithError(err).Warn("handback transition rejected")
	}

	if resolution == domain.ResolutionResolved {
		if _, err := t.machine.Apply(ctx, th, domain.TriggerResolve, "resolved during human handling"); err != nil {
			t.log.WithThread(threadID).WithError(err).Warn("resolve transition rejected")
		} else if err := t.threads.SetResolved(ctx, threadID, end); err != nil {
			t.log.WithThread(threadID).WithError(err).Error("failed to stamp resolution time")
		}
	}

	t.log.WithThread(threadID).Info("observation %d closed as %s", open.ID, resolution)
	return open, nil
}

// ListByThread returns all takeover records for a thread, open first.
func (t *Tracker) ListByThread(ctx context.Context, threadID int64) ([]*domain.Observation, error) {
	observations, err := t.observations.ListByThread(ctx, threadID)
	if err != nil {
		return nil, apperr.DatabaseError("list observations", err)
	}
	return observations, nil
}

func (t *Tracker) recordEvent(ctx context.Context, threadID int64, typ domain.EventType, payload any) {
	event, err := domain.NewEvent(threadID, typ, payload)
	if err == nil {
		err = t.events.Append(ctx, event)
	}
	if err != nil {
		t.log.WithThread(threadID).WithError(err).Error("failed to append %s event", typ)
	}
}
