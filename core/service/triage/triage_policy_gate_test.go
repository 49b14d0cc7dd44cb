package triage

import (
	"testing"

	"triage_server/core/domain"
)

func gateSettings() *domain.PipelineSettings {
	s := domain.DefaultPipelineSettings()
	s.AutosendEnabled = true
	s.ForbiddenPhrases = []string{"guaranteed refund", "legal advice"}
	s.RequiredDisclosures = map[domain.Intent]string{
		domain.IntentReturnRequest: "return window",
	}
	return s
}

func groundedChunks(score float64) []*domain.RetrievedChunk {
	return []*domain.RetrievedChunk{
		{Chunk: &domain.KBChunk{ID: 1, DocID: 1}, Score: score, Similarity: score, Semantic: true},
		{Chunk: &domain.KBChunk{ID: 2, DocID: 1}, Score: score, Similarity: score, Semantic: true},
	}
}

func TestEvaluateVerdicts(t *testing.T) {
	tests := []struct {
		name       string
		input      *GateInput
		verdict    domain.GateVerdict
		violations []string
	}{
		{
			name: "verified grounded high confidence is eligible",
			input: &GateInput{
				Text:       "Your order shipped yesterday with tracking TRK99.",
				Intent:     domain.IntentOrderStatus,
				Confidence: 0.92,
				Verified:   true,
				Chunks:     groundedChunks(0.9),
			},
			verdict: domain.VerdictEligibleForAutosend,
		},
		{
			name: "forbidden phrase blocks regardless of confidence",
			input: &GateInput{
				Text:       "You have a GUARANTEED REFUND coming.",
				Intent:     domain.IntentOrderStatus,
				Confidence: 0.99,
				Verified:   true,
				Chunks:     groundedChunks(0.9),
			},
			verdict:    domain.VerdictBlocked,
			violations: []string{ViolationForbiddenPhrase + ": guaranteed refund"},
		},
		{
			name: "empty draft is blocked",
			input: &GateInput{
				Text:   "   ",
				Intent: domain.IntentOrderStatus,
			},
			verdict:    domain.VerdictBlocked,
			violations: []string{ViolationEmptyDraft},
		},
		{
			name: "missing disclosure needs review",
			input: &GateInput{
				Text:       "Sure, send it back whenever.",
				Intent:     domain.IntentReturnRequest,
				Confidence: 0.95,
				Verified:   true,
				Chunks:     groundedChunks(0.9),
			},
			verdict:    domain.VerdictNeedsReview,
			violations: []string{ViolationMissingDisclosure},
		},
		{
			name: "disclosure present passes",
			input: &GateInput{
				Text:       "Our return window is 30 days from delivery.",
				Intent:     domain.IntentReturnRequest,
				Confidence: 0.95,
				Verified:   true,
				Chunks:     groundedChunks(0.9),
			},
			verdict: domain.VerdictEligibleForAutosend,
		},
		{
			name: "unknown intent needs review",
			input: &GateInput{
				Text:   "Thanks for reaching out.",
				Intent: domain.IntentUnknown,
			},
			verdict:    domain.VerdictNeedsReview,
			violations: []string{ViolationIntentUnknown},
		},
		{
			name: "high stakes without grounding needs review",
			input: &GateInput{
				Text:        "Your refund will be processed.",
				Intent:      domain.IntentRefundRequest,
				Confidence:  0.95,
				Verified:    true,
				NoGrounding: true,
			},
			verdict:    domain.VerdictNeedsReview,
			violations: []string{ViolationNoGrounding},
		},
		{
			name: "unverified customer never autosends order intents",
			input: &GateInput{
				Text:       "Your refund is on the way.",
				Intent:     domain.IntentRefundRequest,
				Confidence: 0.99,
				Verified:   false,
				Chunks:     groundedChunks(0.95),
			},
			verdict:    domain.VerdictNeedsReview,
			violations: []string{ViolationUnverifiedCustomer},
		},
	}

	gate := NewPolicyGate()
	settings := gateSettings()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := gate.Evaluate(settings, tt.input)
			if decision.Verdict != tt.verdict {
				t.Fatalf("verdict = %s, want %s (violations %v)", decision.Verdict, tt.verdict, decision.Violations)
			}
			for _, want := range tt.violations {
				if !containsString(decision.Violations, want) {
					t.Fatalf("violations %v missing %q", decision.Violations, want)
				}
			}
		})
	}
}

func TestEvaluateAutosendDisabled(t *testing.T) {
	settings := gateSettings()
	settings.AutosendEnabled = false
	decision := NewPolicyGate().Evaluate(settings, &GateInput{
		Text:       "Your order shipped.",
		Intent:     domain.IntentOrderStatus,
		Confidence: 0.95,
		Verified:   true,
		Chunks:     groundedChunks(0.9),
	})
	if decision.Verdict != domain.VerdictNeedsReview {
		t.Fatalf("verdict = %s, want needs_review", decision.Verdict)
	}
	if !containsString(decision.Violations, ViolationAutosendDisabled) {
		t.Fatalf("violations %v missing autosend_disabled", decision.Violations)
	}
}

func TestCompositeConfidence(t *testing.T) {
	tests := []struct {
		name           string
		classification float64
		grounding      float64
		verified       bool
		want           float64
	}{
		{"all signals max", 1.0, 1.0, true, 1.0},
		{"no signals", 0, 0, false, 0},
		{"classification only", 1.0, 0, false, 0.6},
		{"verification adds fifteen points", 0, 0, true, 0.15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompositeConfidence(tt.classification, tt.grounding, tt.verified)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("CompositeConfidence = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"draft", "draft", 0},
		{"draft", "", 5},
		{"kitten", "sitting", 3},
		{"hello there", "hello here", 1},
	}
	for _, tt := range tests {
		if got := EditDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("EditDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
