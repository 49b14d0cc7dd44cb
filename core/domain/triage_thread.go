package domain

import (
	"time"
)

// ThreadState is the lifecycle state of a support conversation.
type ThreadState string

const (
	ThreadStateNew           ThreadState = "NEW"
	ThreadStateAwaitingInfo  ThreadState = "AWAITING_INFO"
	ThreadStateInProgress    ThreadState = "IN_PROGRESS"
	ThreadStateEscalated     ThreadState = "ESCALATED"
	ThreadStateHumanHandling ThreadState = "HUMAN_HANDLING"
	ThreadStateResolved      ThreadState = "RESOLVED"
)

// Valid reports whether s is a known state.
func (s ThreadState) Valid() bool {
	switch s {
	case ThreadStateNew, ThreadStateAwaitingInfo, ThreadStateInProgress,
		ThreadStateEscalated, ThreadStateHumanHandling, ThreadStateResolved:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state. RESOLVED threads are
// reopened only by a new inbound message.
func (s ThreadState) Terminal() bool {
	return s == ThreadStateResolved
}

// Trigger is an input to the thread state machine.
type Trigger string

const (
	TriggerInboundMessage Trigger = "inbound_message"
	TriggerDraftSent      Trigger = "draft_sent"
	TriggerInfoRequested  Trigger = "info_requested"
	TriggerEscalate       Trigger = "escalate"
	TriggerHumanTakeover  Trigger = "human_takeover"
	TriggerHumanHandback  Trigger = "human_handback"
	TriggerResolve        Trigger = "resolve"
)

// VerificationStatus records whether the customer identity behind a
// thread was confirmed against the commerce platform.
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationVerified   VerificationStatus = "verified"
	VerificationFailed     VerificationStatus = "failed"
)

// Thread is the root aggregate of one support conversation. Messages,
// events, drafts, observations and learning proposals reference it by id.
type Thread struct {
	ID              int64              `json:"id"`
	Subject         string             `json:"subject"`
	State           ThreadState        `json:"state"`
	LastIntent      *Intent            `json:"last_intent,omitempty"`
	Verification    VerificationStatus `json:"verification"`
	CustomerEmail   string             `json:"customer_email"`
	CustomerID      *string            `json:"customer_id,omitempty"`
	OrderNumber     *string            `json:"order_number,omitempty"`
	VendorRequestID *int64             `json:"vendor_request_id,omitempty"`
	ProviderThread  string             `json:"provider_thread_id,omitempty"`
	Mailbox         string             `json:"mailbox"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	ResolvedAt      *time.Time         `json:"resolved_at,omitempty"`
}

// Verified reports whether the customer behind the thread is verified.
func (t *Thread) Verified() bool {
	return t.Verification == VerificationVerified
}

// ThreadFilter narrows thread listings.
type ThreadFilter struct {
	State         *ThreadState
	Intent        *Intent
	CustomerEmail *string
	OrderNumber   *string
	UpdatedAfter  *time.Time
	Limit         int
	Offset        int
}
