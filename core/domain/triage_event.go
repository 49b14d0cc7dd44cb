package domain

import (
	"time"

	"github.com/goccy/go-json"
)

// EventType discriminates event payloads. Unknown types are preserved
// verbatim so newer writers do not break older readers.
type EventType string

const (
	EventStateTransition     EventType = "state_transition"
	EventTransitionRejected  EventType = "transition_rejected"
	EventMessageIngested     EventType = "message_ingested"
	EventDraftGenerated      EventType = "draft_generated"
	EventDraftSent           EventType = "draft_sent"
	EventObservationOpened   EventType = "observation_opened"
	EventObservationClosed   EventType = "observation_closed"
	EventVendorReplyMatched  EventType = "vendor_reply_matched"
	EventPromisedAction      EventType = "promised_action"
	EventToolAction          EventType = "tool_action"
	EventCRMSync             EventType = "crm_sync"
	EventTriageCycleFailed   EventType = "triage_cycle_failed"
)

// Event is one append-only audit record on a thread. Events are never
// mutated; the only delete path is the administrative bulk purge.
type Event struct {
	ID        int64           `json:"id"`
	ThreadID  int64           `json:"thread_id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// StateTransitionPayload records an applied transition.
type StateTransitionPayload struct {
	From    ThreadState `json:"from"`
	To      ThreadState `json:"to"`
	Trigger Trigger     `json:"trigger"`
	Reason  string      `json:"reason"`
}

// TransitionRejectedPayload records a rejected transition. The thread
// state is unchanged when this event is written.
type TransitionRejectedPayload struct {
	State   ThreadState `json:"state"`
	Trigger Trigger     `json:"trigger"`
	Reason  string      `json:"reason"`
}

// MessageIngestedPayload records a normalized inbound or outbound message.
type MessageIngestedPayload struct {
	MessageID  int64     `json:"message_id"`
	Direction  Direction `json:"direction"`
	ProviderID string    `json:"provider_id,omitempty"`
	Duplicate  bool      `json:"duplicate,omitempty"`
}

// DraftGeneratedPayload records a generation attempt and its verdict.
type DraftGeneratedPayload struct {
	DraftID    int64       `json:"draft_id"`
	Intent     Intent      `json:"intent"`
	Verdict    GateVerdict `json:"verdict"`
	Violations []string    `json:"violations,omitempty"`
	ChunkIDs   []int64     `json:"chunk_ids,omitempty"`
}

// DraftSentPayload records an outbound send.
type DraftSentPayload struct {
	DraftID      int64  `json:"draft_id"`
	MessageID    int64  `json:"message_id"`
	WasEdited    bool   `json:"was_edited"`
	EditDistance int    `json:"edit_distance,omitempty"`
	SentBy       string `json:"sent_by,omitempty"`
	AutoSent     bool   `json:"auto_sent"`
}

// ObservationOpenedPayload records human takeover of a thread.
type ObservationOpenedPayload struct {
	ObservationID int64  `json:"observation_id"`
	Handler       string `json:"handler"`
}

// ObservationClosedPayload records the resolution of a takeover.
type ObservationClosedPayload struct {
	ObservationID int64  `json:"observation_id"`
	Resolution    string `json:"resolution"`
}

// VendorReplyMatchedPayload records a matched vendor reply.
type VendorReplyMatchedPayload struct {
	VendorRequestID int64  `json:"vendor_request_id"`
	OrderNumber     string `json:"order_number"`
	MessageID       int64  `json:"message_id"`
}

// PromisedActionPayload records a commitment made in an outbound reply.
type PromisedActionPayload struct {
	Action  string     `json:"action"`
	DueAt   *time.Time `json:"due_at,omitempty"`
	DraftID int64      `json:"draft_id,omitempty"`
}

// ToolActionPayload records an external side effect taken by the
// pipeline (tracking write, CRM call).
type ToolActionPayload struct {
	Tool    string `json:"tool"`
	Input   string `json:"input,omitempty"`
	Outcome string `json:"outcome"`
}

// CRMSyncPayload records a fire-and-forget CRM sync attempt.
type CRMSyncPayload struct {
	TicketID string `json:"ticket_id,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// TriageCycleFailedPayload records an exhausted triage cycle. The
// thread stays in its prior state for the next cycle to retry.
type TriageCycleFailedPayload struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// NewEvent marshals a typed payload into an Event.
func NewEvent(threadID int64, typ EventType, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		ThreadID:  threadID,
		Type:      typ,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// DecodePayload unmarshals the event payload into a typed struct for
// the known event kinds. Unknown kinds return (nil, false) and the raw
// payload stays available on the Event.
func (e *Event) DecodePayload() (any, bool) {
	var target any
	switch e.Type {
	case EventStateTransition:
		target = &StateTransitionPayload{}
	case EventTransitionRejected:
		target = &TransitionRejectedPayload{}
	case EventMessageIngested:
		target = &MessageIngestedPayload{}
	case EventDraftGenerated:
		target = &DraftGeneratedPayload{}
	case EventDraftSent:
		target = &DraftSentPayload{}
	case EventObservationOpened:
		target = &ObservationOpenedPayload{}
	case EventObservationClosed:
		target = &ObservationClosedPayload{}
	case EventVendorReplyMatched:
		target = &VendorReplyMatchedPayload{}
	case EventPromisedAction:
		target = &PromisedActionPayload{}
	case EventToolAction:
		target = &ToolActionPayload{}
	case EventCRMSync:
		target = &CRMSyncPayload{}
	case EventTriageCycleFailed:
		target = &TriageCycleFailedPayload{}
	default:
		return nil, false
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return nil, false
	}
	return target, true
}
