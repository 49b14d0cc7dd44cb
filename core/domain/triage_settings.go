package domain

import (
	"time"
)

// PipelineSettings is the runtime-tunable configuration snapshot loaded
// at the start of every triage cycle. Admin edits apply on the next
// cycle, never mid-flight.
type PipelineSettings struct {
	// Version is monotonic, derived from the row's updated_at.
	Version int64 `json:"version"`

	AutosendEnabled      bool    `json:"autosend_enabled"`
	ConfidenceThreshold  float64 `json:"confidence_threshold"`
	RequireVerification  bool    `json:"require_verification"`
	RetrievalTopN        int     `json:"retrieval_top_n"`
	MinSimilarity        float64 `json:"min_similarity"`
	HistoryWindow        int     `json:"history_window"`
	ForbiddenPhrases     []string `json:"forbidden_phrases,omitempty"`
	// RequiredDisclosures maps an intent to text that must appear in
	// any draft for that intent.
	RequiredDisclosures map[Intent]string `json:"required_disclosures,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// DefaultPipelineSettings is used when the settings row is absent.
func DefaultPipelineSettings() *PipelineSettings {
	return &PipelineSettings{
		AutosendEnabled:     false,
		ConfidenceThreshold: 0.80,
		RequireVerification: true,
		RetrievalTopN:       5,
		MinSimilarity:       0.70,
		HistoryWindow:       10,
	}
}
