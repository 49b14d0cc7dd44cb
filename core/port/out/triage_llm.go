package out

import (
	"context"

	"triage_server/core/domain"
)

// DraftRequest carries everything the generator may ground a reply on.
type DraftRequest struct {
	Intent   domain.Intent
	Subject  string
	Body     string
	History  []string
	Chunks   []*domain.RetrievedChunk
	Customer *domain.CustomerContext
	// NoGrounding flags a high-stakes intent drafted with zero chunks.
	// The flag travels to the policy gate, never silently dropped.
	NoGrounding bool
}

// DraftResult is the generation output.
type DraftResult struct {
	Text          string  `json:"text"`
	CitedChunkIDs []int64 `json:"cited_chunk_ids,omitempty"`
	TokensUsed    int     `json:"tokens_used"`
}

// LLMPort is the provider-agnostic contract for classification and
// generation. Implementations are swappable without touching the
// pipeline.
type LLMPort interface {
	// Classify assigns one intent from the taxonomy plus a confidence
	// in [0,1]. Provider errors degrade to UNKNOWN/0 inside the
	// adapter; the returned error is informational only.
	Classify(ctx context.Context, subject, body string, history []string) (domain.IntentResult, error)
	// GenerateDraft produces a reply draft grounded on the request.
	GenerateDraft(ctx context.Context, req *DraftRequest) (*DraftResult, error)
}

// EmbedderPort converts text into a fixed-dimension vector. A nil
// embedder degrades retrieval to lexical-only.
type EmbedderPort interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
