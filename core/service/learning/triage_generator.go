package learning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"triage_server/core/agent/llm"
	"triage_server/core/agent/rag"
	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/logger"
)

// Similarity thresholds against existing knowledge. At or above the
// duplicate threshold no proposal is created; in between, the proposal
// becomes an update suggestion linked to the closest document.
const (
	duplicateThreshold = 0.92
	updateThreshold    = 0.78
)

// KnowledgeMiner extracts a raw candidate from a closed thread.
type KnowledgeMiner interface {
	MineKnowledge(ctx context.Context, transcript string, summary *domain.ObservationSummary) (*llm.KnowledgeCandidate, error)
}

// SimilaritySearcher finds the closest published chunks to a vector.
type SimilaritySearcher interface {
	Search(ctx context.Context, embedding []float32, minScore float64, limit int) ([]*rag.ChunkHit, error)
}

// Generator mines resolved and observed threads into scored learning
// proposals. Each thread is mined at most once.
type Generator struct {
	threads      out.ThreadRepository
	messages     out.MessageRepository
	observations out.ObservationRepository
	proposals    out.LearningRepository
	miner        KnowledgeMiner
	embedder     out.EmbedderPort
	searcher     SimilaritySearcher
	scorer       *ConfidenceScorer
	log          *logger.Logger
}

type GeneratorDeps struct {
	Threads      out.ThreadRepository
	Messages     out.MessageRepository
	Observations out.ObservationRepository
	Proposals    out.LearningRepository
	Miner        KnowledgeMiner
	Embedder     out.EmbedderPort
	Searcher     SimilaritySearcher
}

func NewGenerator(deps GeneratorDeps) *Generator {
	return &Generator{
		threads:      deps.Threads,
		messages:     deps.Messages,
		observations: deps.Observations,
		proposals:    deps.Proposals,
		miner:        deps.Miner,
		embedder:     deps.Embedder,
		searcher:     deps.Searcher,
		scorer:       NewConfidenceScorer(),
		log:          logger.Default().WithField("component", "learning_generator"),
	}
}

// MineThread extracts one proposal from a closed thread. Returns nil
// without error when no miner is configured, the thread was already
// mined, nothing reusable was learned, or the knowledge duplicates an
// existing document.
func (g *Generator) MineThread(ctx context.Context, threadID int64) (*domain.LearningProposal, error) {
	if g.miner == nil {
		return nil, nil
	}

	exists, err := g.proposals.ExistsForThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	transcript, err := g.buildTranscript(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if transcript == "" {
		return nil, nil
	}

	summary, err := g.latestSummary(ctx, threadID)
	if err != nil {
		return nil, err
	}

	candidate, err := g.miner.MineKnowledge(ctx, transcript, summary)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		g.log.WithThread(threadID).Debug("nothing reusable mined")
		return nil, nil
	}

	proposal := &domain.LearningProposal{
		ThreadID:    threadID,
		Type:        parseProposalType(candidate.Type),
		Title:       candidate.Title,
		Content:     candidate.Content,
		IntentTags:  candidate.IntentTags,
		ProductTags: candidate.ProductTags,
		Status:      domain.ProposalPending,
		CreatedAt:   time.Now().UTC(),
	}

	if dup, err := g.linkSimilar(ctx, proposal); err != nil {
		g.log.WithThread(threadID).WithError(err).Warn("similarity check failed, proposing without link")
	} else if dup {
		g.log.WithThread(threadID).Info("mined knowledge duplicates doc %d, skipping", *proposal.SimilarDocID)
		return nil, nil
	}

	breakdown := g.scorer.Score(proposal.Title, proposal.Content, proposal.IntentTags, proposal.ProductTags)
	proposal.Breakdown = breakdown
	proposal.Confidence = breakdown.Composite
	proposal.Recommend = Recommend(breakdown.Composite)
	if proposal.Recommend == domain.RecommendAutoApprove {
		proposal.AutoApproved = true
		proposal.Status = domain.ProposalApproved
	}
	if proposal.Recommend == domain.RecommendAutoReject {
		proposal.Status = domain.ProposalRejected
	}

	if err := g.proposals.Create(ctx, proposal); err != nil {
		return nil, err
	}
	g.log.WithThread(threadID).Info("proposal %d created: %s (%s, %.2f)", proposal.ID, proposal.Title, proposal.Recommend, proposal.Confidence)
	return proposal, nil
}

// MineClosedSince walks recently closed threads. Per-thread failures
// are logged and skipped so one bad thread does not stall the batch.
func (g *Generator) MineClosedSince(ctx context.Context, since time.Time, limit int) (int, error) {
	if g.miner == nil {
		g.log.Debug("no knowledge miner configured, skipping learning sweep")
		return 0, nil
	}

	threads, err := g.threads.ListClosedSince(ctx, since, limit)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, t := range threads {
		proposal, err := g.MineThread(ctx, t.ID)
		if err != nil {
			g.log.WithThread(t.ID).WithError(err).Error("mining failed")
			continue
		}
		if proposal != nil {
			created++
		}
	}
	return created, nil
}

// linkSimilar embeds the proposed content and links the closest
// published document. Reports true when the content is close enough to
// count as a duplicate.
func (g *Generator) linkSimilar(ctx context.Context, proposal *domain.LearningProposal) (bool, error) {
	if g.embedder == nil || g.searcher == nil {
		return false, nil
	}
	embedding, err := g.embedder.Embed(ctx, proposal.Title+"\n"+proposal.Content)
	if err != nil {
		return false, err
	}
	hits, err := g.searcher.Search(ctx, embedding, updateThreshold, 1)
	if err != nil {
		return false, err
	}
	if len(hits) == 0 {
		return false, nil
	}

	docID := hits[0].DocID
	score := hits[0].Score
	proposal.SimilarDocID = &docID
	proposal.SimilarityScore = &score

	if score >= duplicateThreshold {
		return true, nil
	}
	// Close but not identical: suggest updating the existing article
	// instead of adding a near-duplicate.
	if proposal.Type == domain.ProposalNewArticle {
		proposal.Type = domain.ProposalUpdateArticle
	}
	return false, nil
}

func (g *Generator) buildTranscript(ctx context.Context, threadID int64) (string, error) {
	msgs, err := g.messages.ListByThread(ctx, threadID, 50)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&sb, "[%s] %s\n", m.Direction, m.Body)
	}
	return strings.TrimSpace(sb.String()), nil
}

// latestSummary returns the most recently closed observation summary,
// or nil when the thread was never human-handled.
func (g *Generator) latestSummary(ctx context.Context, threadID int64) (*domain.ObservationSummary, error) {
	observations, err := g.observations.ListByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	var latest *domain.Observation
	for _, o := range observations {
		if o.Open() || o.Summary == nil {
			continue
		}
		if latest == nil || o.InterventionEnd.After(*latest.InterventionEnd) {
			latest = o
		}
	}
	if latest == nil {
		return nil, nil
	}
	return latest.Summary, nil
}

func parseProposalType(s string) domain.ProposalType {
	switch domain.ProposalType(s) {
	case domain.ProposalUpdateArticle:
		return domain.ProposalUpdateArticle
	case domain.ProposalInstructionUpdate:
		return domain.ProposalInstructionUpdate
	default:
		return domain.ProposalNewArticle
	}
}
