// Package learning mines closed threads for reusable knowledge and
// scores the resulting proposals.
package learning

import (
	"strings"

	"triage_server/core/domain"
)

// Composite weights. Category fit and content quality dominate; tag
// presence and completeness are small boolean-ish contributions.
const (
	categoryWeight     = 0.4
	qualityWeight      = 0.4
	intentTagWeight    = 0.1
	completenessWeight = 0.1
)

// Recommendation band boundaries over the composite score.
const (
	autoApproveFloor   = 0.85
	flagAttentionFloor = 0.5
	autoRejectCeiling  = 0.3
)

// qualityTargetLen is the content length at which the length component
// of the quality score saturates.
const qualityTargetLen = 600

// ConfidenceScorer is the shared scorer for learning proposals and the
// imported-document review queue. Stateless.
type ConfidenceScorer struct{}

func NewConfidenceScorer() *ConfidenceScorer {
	return &ConfidenceScorer{}
}

// Score builds the full breakdown for one candidate.
func (s *ConfidenceScorer) Score(title, content string, intentTags, productTags []string) domain.ScoreBreakdown {
	b := domain.ScoreBreakdown{
		CategoryFit:     categoryFit(intentTags),
		ContentQuality:  contentQuality(title, content),
		IntentTag:       boolScore(len(intentTags) > 0),
		TagCompleteness: tagCompleteness(intentTags, productTags),
	}
	b.Composite = Composite(b)
	return b
}

// Composite folds the sub-scores into [0,1].
func Composite(b domain.ScoreBreakdown) float64 {
	score := categoryWeight*b.CategoryFit +
		qualityWeight*b.ContentQuality +
		intentTagWeight*b.IntentTag +
		completenessWeight*b.TagCompleteness
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Recommend maps a composite score onto a band. Boundaries belong to
// the upper band: exactly 0.85 auto-approves, exactly 0.5 flags, and
// exactly 0.3 needs review.
func Recommend(composite float64) domain.Recommendation {
	switch {
	case composite >= autoApproveFloor:
		return domain.RecommendAutoApprove
	case composite >= flagAttentionFloor:
		return domain.RecommendFlagAttention
	case composite < autoRejectCeiling:
		return domain.RecommendAutoReject
	default:
		return domain.RecommendNeedsReview
	}
}

// categoryFit is the fraction of intent tags that land in the intent
// taxonomy. Off-taxonomy tags dilute the fit.
func categoryFit(intentTags []string) float64 {
	if len(intentTags) == 0 {
		return 0
	}
	known := 0
	for _, tag := range intentTags {
		if domain.ParseIntent(strings.ToUpper(tag)) != domain.IntentUnknown {
			known++
		}
	}
	return float64(known) / float64(len(intentTags))
}

// contentQuality is a deterministic heuristic over length and shape:
// substantial, multi-sentence content with a title scores high; stubs
// score low.
func contentQuality(title, content string) float64 {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0
	}

	length := len(content)
	if length > qualityTargetLen {
		length = qualityTargetLen
	}
	score := 0.6 * float64(length) / qualityTargetLen

	if strings.TrimSpace(title) != "" {
		score += 0.2
	}
	if strings.Count(content, ".")+strings.Count(content, "\n") >= 2 {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

func tagCompleteness(intentTags, productTags []string) float64 {
	populated := 0.0
	if len(intentTags) > 0 {
		populated++
	}
	if len(productTags) > 0 {
		populated++
	}
	return populated / 2
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
