package domain

import (
	"time"
)

// ProposalType is the kind of knowledge change a proposal suggests.
type ProposalType string

const (
	ProposalNewArticle        ProposalType = "new_article"
	ProposalUpdateArticle     ProposalType = "update_article"
	ProposalInstructionUpdate ProposalType = "instruction_update"
)

// ProposalStatus is the review lifecycle of a proposal.
type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "pending"
	ProposalApproved  ProposalStatus = "approved"
	ProposalRejected  ProposalStatus = "rejected"
	ProposalPublished ProposalStatus = "published"
)

// Recommendation is the band the shared scorer places a candidate in.
type Recommendation string

const (
	RecommendAutoApprove   Recommendation = "auto_approve"
	RecommendFlagAttention Recommendation = "flag_attention"
	RecommendNeedsReview   Recommendation = "needs_review"
	RecommendAutoReject    Recommendation = "auto_reject"
)

// ScoreBreakdown holds the sub-scores that compose a confidence score.
// Category fit and content quality dominate the composite.
type ScoreBreakdown struct {
	CategoryFit     float64 `json:"category_fit"`
	ContentQuality  float64 `json:"content_quality"`
	IntentTag       float64 `json:"intent_tag"`
	TagCompleteness float64 `json:"tag_completeness"`
	Composite       float64 `json:"composite"`
}

// LearningProposal is a machine-generated knowledge or instruction
// change mined from a resolved or observed thread.
type LearningProposal struct {
	ID           int64          `json:"id"`
	ThreadID     int64          `json:"thread_id"`
	Type         ProposalType   `json:"type"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	IntentTags   []string       `json:"intent_tags,omitempty"`
	ProductTags  []string       `json:"product_tags,omitempty"`
	Confidence   float64        `json:"confidence"`
	Breakdown    ScoreBreakdown `json:"breakdown"`
	Recommend    Recommendation `json:"recommendation"`
	AutoApproved bool           `json:"auto_approved"`
	Status       ProposalStatus `json:"status"`
	// SimilarDocID links the closest existing document, used to avoid
	// duplicate proposals.
	SimilarDocID    *int64    `json:"similar_doc_id,omitempty"`
	SimilarityScore *float64  `json:"similarity_score,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy      *string    `json:"reviewed_by,omitempty"`
}
