package domain

import (
	"time"
)

// GateVerdict is the policy gate decision over a generated draft.
type GateVerdict string

const (
	VerdictEligibleForAutosend GateVerdict = "eligible_for_autosend"
	VerdictNeedsReview         GateVerdict = "needs_review"
	VerdictBlocked             GateVerdict = "blocked"
)

// Citation references a knowledge chunk used to ground a draft.
type Citation struct {
	ChunkID    int64   `json:"chunk_id"`
	DocID      int64   `json:"doc_id"`
	DocTitle   string  `json:"doc_title"`
	Similarity float64 `json:"similarity"`
}

// DraftGeneration is one generation attempt. Immutable once created
// except for the send-time fields.
type DraftGeneration struct {
	ID         int64       `json:"id"`
	ThreadID   int64       `json:"thread_id"`
	MessageID  int64       `json:"message_id"`
	Intent     Intent      `json:"intent"`
	Confidence float64     `json:"confidence"`
	ChunkIDs   []int64     `json:"chunk_ids,omitempty"`
	RawText    string      `json:"raw_text"`
	FinalText  string      `json:"final_text"`
	Citations  []Citation  `json:"citations,omitempty"`
	// NoGrounding is set when a high-stakes intent was drafted with
	// zero retrieved chunks.
	NoGrounding bool        `json:"no_grounding"`
	Verdict     GateVerdict `json:"verdict"`
	Violations  []string    `json:"violations,omitempty"`
	TokensUsed  int         `json:"tokens_used,omitempty"`

	// Send-time fields.
	WasSent      bool       `json:"was_sent"`
	WasEdited    bool       `json:"was_edited"`
	EditDistance int        `json:"edit_distance,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	SentBy       *string    `json:"sent_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Sendable reports whether the gate allowed sending at all.
func (d *DraftGeneration) Sendable() bool {
	return d.Verdict != VerdictBlocked
}
