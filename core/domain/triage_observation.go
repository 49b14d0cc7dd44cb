package domain

import (
	"time"
)

// ResolutionClass classifies how a human takeover ended.
type ResolutionClass string

const (
	ResolutionResolved      ResolutionClass = "resolved"
	ResolutionNeedsRule     ResolutionClass = "needs_rule"
	ResolutionManualUnblock ResolutionClass = "manual_unblock"
	ResolutionEscalatedOut  ResolutionClass = "escalated_out"
	ResolutionAbandoned     ResolutionClass = "abandoned"
)

// ObservationSummary is the structured record of what happened during
// a takeover. It feeds the learning generator.
type ObservationSummary struct {
	QuestionsAsked []string `json:"questions_asked,omitempty"`
	StepsTaken     []string `json:"steps_taken,omitempty"`
	NewInformation []string `json:"new_information,omitempty"`
	Notes          string   `json:"notes,omitempty"`
}

// Observation records one period of human takeover. Open while
// InterventionEnd is nil; at most one open per thread.
type Observation struct {
	ID                int64               `json:"id"`
	ThreadID          int64               `json:"thread_id"`
	Handler           string              `json:"handler"`
	InterventionStart time.Time           `json:"intervention_start"`
	InterventionEnd   *time.Time          `json:"intervention_end,omitempty"`
	Resolution        *ResolutionClass    `json:"resolution,omitempty"`
	Summary           *ObservationSummary `json:"summary,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
}

// Open reports whether the takeover is still in progress.
func (o *Observation) Open() bool {
	return o.InterventionEnd == nil
}
