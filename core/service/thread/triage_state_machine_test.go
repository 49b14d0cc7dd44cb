package thread

import (
	"testing"

	"triage_server/core/domain"
)

var allStates = []domain.ThreadState{
	domain.ThreadStateNew,
	domain.ThreadStateAwaitingInfo,
	domain.ThreadStateInProgress,
	domain.ThreadStateEscalated,
	domain.ThreadStateHumanHandling,
	domain.ThreadStateResolved,
}

var allTriggers = []domain.Trigger{
	domain.TriggerInboundMessage,
	domain.TriggerDraftSent,
	domain.TriggerInfoRequested,
	domain.TriggerEscalate,
	domain.TriggerHumanTakeover,
	domain.TriggerHumanHandback,
	domain.TriggerResolve,
}

// Every (state, trigger) pair must yield either a valid state or an
// explicit rejection.
func TestNextTotality(t *testing.T) {
	for _, state := range allStates {
		for _, trigger := range allTriggers {
			tr, ok := Next(state, trigger)
			if ok {
				if !tr.To.Valid() {
					t.Errorf("Next(%s, %s) returned invalid state %q", state, trigger, tr.To)
				}
			} else {
				if tr.Reason == "" {
					t.Errorf("Next(%s, %s) rejected without a reason", state, trigger)
				}
			}
		}
	}
}

func TestNextTransitions(t *testing.T) {
	tests := []struct {
		name    string
		state   domain.ThreadState
		trigger domain.Trigger
		want    domain.ThreadState
		wantOK  bool
	}{
		{"new to in_progress on draft sent", domain.ThreadStateNew, domain.TriggerDraftSent, domain.ThreadStateInProgress, true},
		{"new to awaiting_info", domain.ThreadStateNew, domain.TriggerInfoRequested, domain.ThreadStateAwaitingInfo, true},
		{"new to escalated", domain.ThreadStateNew, domain.TriggerEscalate, domain.ThreadStateEscalated, true},
		{"awaiting_info advances on inbound", domain.ThreadStateAwaitingInfo, domain.TriggerInboundMessage, domain.ThreadStateInProgress, true},
		{"in_progress resolves", domain.ThreadStateInProgress, domain.TriggerResolve, domain.ThreadStateResolved, true},
		{"takeover from escalated", domain.ThreadStateEscalated, domain.TriggerHumanTakeover, domain.ThreadStateHumanHandling, true},
		{"handback returns to in_progress", domain.ThreadStateHumanHandling, domain.TriggerHumanHandback, domain.ThreadStateInProgress, true},
		{"resolved reopens only on inbound", domain.ThreadStateResolved, domain.TriggerInboundMessage, domain.ThreadStateInProgress, true},

		{"human_handling cannot resolve directly", domain.ThreadStateHumanHandling, domain.TriggerResolve, "", false},
		{"human_handling cannot escalate", domain.ThreadStateHumanHandling, domain.TriggerEscalate, "", false},
		{"resolved rejects draft sent", domain.ThreadStateResolved, domain.TriggerDraftSent, "", false},
		{"resolved rejects resolve", domain.ThreadStateResolved, domain.TriggerResolve, "", false},
		{"escalated rejects handback", domain.ThreadStateEscalated, domain.TriggerHumanHandback, "", false},
		{"new rejects handback", domain.ThreadStateNew, domain.TriggerHumanHandback, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, ok := Next(tt.state, tt.trigger)
			if ok != tt.wantOK {
				t.Fatalf("Next(%s, %s) ok = %v, want %v", tt.state, tt.trigger, ok, tt.wantOK)
			}
			if ok && tr.To != tt.want {
				t.Errorf("Next(%s, %s) = %s, want %s", tt.state, tt.trigger, tr.To, tt.want)
			}
		})
	}
}

func TestSelfTransitionsAudited(t *testing.T) {
	// Inbound messages attach without changing state mid-lifecycle.
	for _, state := range []domain.ThreadState{
		domain.ThreadStateNew,
		domain.ThreadStateInProgress,
		domain.ThreadStateEscalated,
		domain.ThreadStateHumanHandling,
	} {
		tr, ok := Next(state, domain.TriggerInboundMessage)
		if !ok {
			t.Errorf("inbound message rejected in %s", state)
			continue
		}
		if state != domain.ThreadStateAwaitingInfo && tr.To != state {
			t.Errorf("inbound in %s moved to %s, want self", state, tr.To)
		}
	}
}
