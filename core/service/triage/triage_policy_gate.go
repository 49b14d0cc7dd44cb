// Package triage runs the automated reply pipeline: classify, verify,
// retrieve, generate, gate, and optionally send.
package triage

import (
	"fmt"
	"strings"

	"triage_server/core/domain"
)

// Composite confidence weights. Classification dominates; grounding and
// verification temper it.
const (
	classificationWeight = 0.6
	groundingWeight      = 0.25
	verificationWeight   = 0.15
)

// Violation codes recorded on the draft. Stable strings, surfaced to
// reviewers through the API.
const (
	ViolationForbiddenPhrase    = "forbidden_phrase"
	ViolationMissingDisclosure  = "missing_disclosure"
	ViolationIntentUnknown      = "intent_unknown"
	ViolationNoGrounding        = "no_grounding"
	ViolationUnverifiedCustomer = "unverified_customer"
	ViolationLowConfidence      = "low_confidence"
	ViolationAutosendDisabled   = "autosend_disabled"
	ViolationEmptyDraft         = "empty_draft"
)

// GateInput is everything the policy gate judges a draft on.
type GateInput struct {
	Text       string
	Intent     domain.Intent
	Confidence float64
	Verified   bool
	Chunks     []*domain.RetrievedChunk
	// NoGrounding is set upstream for high-stakes intents drafted with
	// zero retrieved chunks.
	NoGrounding bool
}

// GateDecision is the gate output attached to the stored draft.
type GateDecision struct {
	Verdict    domain.GateVerdict
	Violations []string
	// Composite is the weighted confidence the threshold was applied to.
	Composite float64
}

// PolicyGate evaluates drafts against the active settings snapshot.
// Stateless; safe for concurrent use.
type PolicyGate struct{}

func NewPolicyGate() *PolicyGate {
	return &PolicyGate{}
}

// Evaluate decides the verdict for one draft. Blocked means the draft
// may never be sent, even manually. A customer whose identity is
// unverified never receives an autosent draft for order-touching
// intents, regardless of confidence.
func (g *PolicyGate) Evaluate(settings *domain.PipelineSettings, in *GateInput) *GateDecision {
	decision := &GateDecision{
		Composite: CompositeConfidence(in.Confidence, groundingScore(in.Chunks), in.Verified),
	}

	if strings.TrimSpace(in.Text) == "" {
		decision.Verdict = domain.VerdictBlocked
		decision.Violations = append(decision.Violations, ViolationEmptyDraft)
		return decision
	}

	lower := strings.ToLower(in.Text)
	for _, phrase := range settings.ForbiddenPhrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(phrase)) {
			decision.Violations = append(decision.Violations, fmt.Sprintf("%s: %s", ViolationForbiddenPhrase, phrase))
		}
	}
	if len(decision.Violations) > 0 {
		decision.Verdict = domain.VerdictBlocked
		return decision
	}

	if disclosure, ok := settings.RequiredDisclosures[in.Intent]; ok && disclosure != "" {
		if !strings.Contains(lower, strings.ToLower(disclosure)) {
			decision.Violations = append(decision.Violations, ViolationMissingDisclosure)
		}
	}
	if in.Intent == domain.IntentUnknown {
		decision.Violations = append(decision.Violations, ViolationIntentUnknown)
	}
	if in.NoGrounding {
		decision.Violations = append(decision.Violations, ViolationNoGrounding)
	}
	if settings.RequireVerification && in.Intent.RequiresVerification() && !in.Verified {
		decision.Violations = append(decision.Violations, ViolationUnverifiedCustomer)
	}
	if decision.Composite < settings.ConfidenceThreshold {
		decision.Violations = append(decision.Violations, ViolationLowConfidence)
	}
	if !settings.AutosendEnabled {
		decision.Violations = append(decision.Violations, ViolationAutosendDisabled)
	}

	if len(decision.Violations) > 0 {
		decision.Verdict = domain.VerdictNeedsReview
		return decision
	}
	decision.Verdict = domain.VerdictEligibleForAutosend
	return decision
}

// CompositeConfidence folds the three pipeline signals into one score
// in [0,1]. Verification contributes all or nothing.
func CompositeConfidence(classification, grounding float64, verified bool) float64 {
	v := 0.0
	if verified {
		v = 1.0
	}
	score := classificationWeight*classification + groundingWeight*grounding + verificationWeight*v
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// groundingScore is the mean fused score of the retrieved chunks,
// clamped to [0,1]. No chunks means no grounding signal.
func groundingScore(chunks []*domain.RetrievedChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		sum += c.Score
	}
	mean := sum / float64(len(chunks))
	if mean > 1 {
		return 1
	}
	if mean < 0 {
		return 0
	}
	return mean
}
