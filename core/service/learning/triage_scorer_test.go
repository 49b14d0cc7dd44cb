package learning

import (
	"strings"
	"testing"

	"triage_server/core/domain"
)

func TestRecommendBands(t *testing.T) {
	tests := []struct {
		composite float64
		want      domain.Recommendation
	}{
		{1.0, domain.RecommendAutoApprove},
		{0.85, domain.RecommendAutoApprove},
		{0.8499999, domain.RecommendFlagAttention},
		{0.6, domain.RecommendFlagAttention},
		{0.5, domain.RecommendFlagAttention},
		{0.4999999, domain.RecommendNeedsReview},
		{0.3, domain.RecommendNeedsReview},
		{0.2999999, domain.RecommendAutoReject},
		{0.0, domain.RecommendAutoReject},
	}
	for _, tt := range tests {
		if got := Recommend(tt.composite); got != tt.want {
			t.Errorf("Recommend(%f) = %s, want %s", tt.composite, got, tt.want)
		}
	}
}

func TestScoreFullCandidate(t *testing.T) {
	scorer := NewConfidenceScorer()
	content := strings.Repeat("Check the fitment chart before ordering. ", 20)
	b := scorer.Score("Brake pad fitment", content, []string{"PRODUCT_QUESTION"}, []string{"brake-pads"})

	if b.CategoryFit != 1.0 {
		t.Fatalf("CategoryFit = %f", b.CategoryFit)
	}
	if b.IntentTag != 1.0 || b.TagCompleteness != 1.0 {
		t.Fatalf("tag scores = %f/%f", b.IntentTag, b.TagCompleteness)
	}
	if b.ContentQuality < 0.9 {
		t.Fatalf("ContentQuality = %f for substantial content", b.ContentQuality)
	}
	if b.Composite < autoApproveFloor {
		t.Fatalf("Composite = %f, expected auto-approve territory", b.Composite)
	}
	if Recommend(b.Composite) != domain.RecommendAutoApprove {
		t.Fatalf("recommendation = %s", Recommend(b.Composite))
	}
}

func TestScoreStubContent(t *testing.T) {
	scorer := NewConfidenceScorer()
	b := scorer.Score("", "ok", nil, nil)
	if b.Composite >= autoRejectCeiling {
		t.Fatalf("Composite = %f, stub should auto-reject", b.Composite)
	}
	if Recommend(b.Composite) != domain.RecommendAutoReject {
		t.Fatalf("recommendation = %s", Recommend(b.Composite))
	}
}

func TestCategoryFitDilutedByOffTaxonomyTags(t *testing.T) {
	scorer := NewConfidenceScorer()
	b := scorer.Score("t", "content", []string{"ORDER_STATUS", "made-up-tag"}, nil)
	if b.CategoryFit != 0.5 {
		t.Fatalf("CategoryFit = %f, want 0.5", b.CategoryFit)
	}
}

func TestCompositeClamped(t *testing.T) {
	b := domain.ScoreBreakdown{CategoryFit: 2, ContentQuality: 2, IntentTag: 2, TagCompleteness: 2}
	if got := Composite(b); got != 1 {
		t.Fatalf("Composite = %f, want clamp to 1", got)
	}
}
