// Package thread owns the conversation lifecycle: message
// normalization and the thread state machine.
package thread

import (
	"context"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
)

// Transition is the state machine output for one (state, trigger) pair.
type Transition struct {
	From   domain.ThreadState
	To     domain.ThreadState
	Reason string
}

// transitions is the fixed table. A missing entry is a rejection, never
// an undefined path.
var transitions = map[domain.ThreadState]map[domain.Trigger]domain.ThreadState{
	domain.ThreadStateNew: {
		domain.TriggerInboundMessage: domain.ThreadStateNew,
		domain.TriggerDraftSent:      domain.ThreadStateInProgress,
		domain.TriggerInfoRequested:  domain.ThreadStateAwaitingInfo,
		domain.TriggerEscalate:       domain.ThreadStateEscalated,
		domain.TriggerHumanTakeover:  domain.ThreadStateHumanHandling,
		domain.TriggerResolve:        domain.ThreadStateResolved,
	},
	domain.ThreadStateAwaitingInfo: {
		domain.TriggerInboundMessage: domain.ThreadStateInProgress,
		domain.TriggerDraftSent:      domain.ThreadStateAwaitingInfo,
		domain.TriggerEscalate:       domain.ThreadStateEscalated,
		domain.TriggerHumanTakeover:  domain.ThreadStateHumanHandling,
		domain.TriggerResolve:        domain.ThreadStateResolved,
	},
	domain.ThreadStateInProgress: {
		domain.TriggerInboundMessage: domain.ThreadStateInProgress,
		domain.TriggerDraftSent:      domain.ThreadStateInProgress,
		domain.TriggerInfoRequested:  domain.ThreadStateAwaitingInfo,
		domain.TriggerEscalate:       domain.ThreadStateEscalated,
		domain.TriggerHumanTakeover:  domain.ThreadStateHumanHandling,
		domain.TriggerResolve:        domain.ThreadStateResolved,
	},
	domain.ThreadStateEscalated: {
		domain.TriggerInboundMessage: domain.ThreadStateEscalated,
		domain.TriggerHumanTakeover:  domain.ThreadStateHumanHandling,
		domain.TriggerResolve:        domain.ThreadStateResolved,
	},
	// HUMAN_HANDLING leaves only via an explicit hand-back. An inbound
	// message attaches to the thread but does not change state.
	domain.ThreadStateHumanHandling: {
		domain.TriggerInboundMessage: domain.ThreadStateHumanHandling,
		domain.TriggerHumanHandback:  domain.ThreadStateInProgress,
	},
	// RESOLVED is terminal; only a new inbound message reopens.
	domain.ThreadStateResolved: {
		domain.TriggerInboundMessage: domain.ThreadStateInProgress,
	},
}

// Next computes the transition for (state, trigger). Total over all
// pairs: an illegal pair returns ok=false with the rejection reason.
func Next(state domain.ThreadState, trigger domain.Trigger) (Transition, bool) {
	byTrigger, ok := transitions[state]
	if !ok {
		return Transition{From: state, Reason: "unknown state"}, false
	}
	to, ok := byTrigger[trigger]
	if !ok {
		return Transition{From: state, Reason: "trigger not allowed in state"}, false
	}
	return Transition{From: state, To: to}, true
}

// StateMachine applies transitions against storage and records every
// outcome, applied or rejected, as an event.
type StateMachine struct {
	threads out.ThreadRepository
	events  out.EventRepository
	log     *logger.Logger
}

func NewStateMachine(threads out.ThreadRepository, events out.EventRepository) *StateMachine {
	return &StateMachine{
		threads: threads,
		events:  events,
		log:     logger.Default().WithField("component", "state_machine"),
	}
}

// Apply runs one transition. Illegal transitions leave the state
// unchanged, write a rejection event, and return an error the caller
// may surface or swallow.
func (m *StateMachine) Apply(ctx context.Context, thread *domain.Thread, trigger domain.Trigger, reason string) (*Transition, error) {
	tr, ok := Next(thread.State, trigger)
	if !ok {
		m.recordRejection(ctx, thread.ID, thread.State, trigger, tr.Reason)
		return nil, apperr.IllegalTransition(string(thread.State), string(trigger))
	}
	tr.Reason = reason

	if tr.From == tr.To {
		// Self transition: nothing to persist beyond the audit trail.
		m.recordApplied(ctx, thread.ID, &tr, trigger)
		return &tr, nil
	}

	applied, err := m.threads.UpdateState(ctx, thread.ID, tr.From, tr.To)
	if err != nil {
		return nil, apperr.DatabaseError("update thread state", err)
	}
	if !applied {
		// Lost a race with a concurrent transition.
		m.recordRejection(ctx, thread.ID, thread.State, trigger, "state changed concurrently")
		return nil, apperr.IllegalTransition(string(thread.State), string(trigger))
	}

	thread.State = tr.To
	m.recordApplied(ctx, thread.ID, &tr, trigger)

	m.log.WithThread(thread.ID).Info("thread transitioned %s -> %s (%s)", tr.From, tr.To, trigger)
	return &tr, nil
}

func (m *StateMachine) recordApplied(ctx context.Context, threadID int64, tr *Transition, trigger domain.Trigger) {
	event, err := domain.NewEvent(threadID, domain.EventStateTransition, domain.StateTransitionPayload{
		From:    tr.From,
		To:      tr.To,
		Trigger: trigger,
		Reason:  tr.Reason,
	})
	if err == nil {
		err = m.events.Append(ctx, event)
	}
	if err != nil {
		m.log.WithThread(threadID).WithError(err).Error("failed to record transition event")
	}
}

func (m *StateMachine) recordRejection(ctx context.Context, threadID int64, state domain.ThreadState, trigger domain.Trigger, reason string) {
	event, err := domain.NewEvent(threadID, domain.EventTransitionRejected, domain.TransitionRejectedPayload{
		State:   state,
		Trigger: trigger,
		Reason:  reason,
	})
	if err == nil {
		err = m.events.Append(ctx, event)
	}
	if err != nil {
		m.log.WithThread(threadID).WithError(err).Error("failed to record rejection event")
	}
	m.log.WithThread(threadID).Warn("rejected transition from %s on %s: %s", state, trigger, reason)
}
