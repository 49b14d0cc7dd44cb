package learning

import (
	"context"
	"strings"
	"testing"
	"time"

	"triage_server/core/agent/llm"
	"triage_server/core/agent/rag"
	"triage_server/core/domain"
	"triage_server/core/port/out"
)

type fakeMessageRepo struct {
	out.MessageRepository
	byThread map[int64][]*domain.Message
}

func (r *fakeMessageRepo) ListByThread(_ context.Context, threadID int64, _ int) ([]*domain.Message, error) {
	return r.byThread[threadID], nil
}

type fakeObservationRepo struct {
	out.ObservationRepository
	byThread map[int64][]*domain.Observation
}

func (r *fakeObservationRepo) ListByThread(_ context.Context, threadID int64) ([]*domain.Observation, error) {
	return r.byThread[threadID], nil
}

type fakeLearningRepo struct {
	out.LearningRepository
	proposals []*domain.LearningProposal
	mined     map[int64]bool
}

func (r *fakeLearningRepo) ExistsForThread(_ context.Context, threadID int64) (bool, error) {
	return r.mined[threadID], nil
}

func (r *fakeLearningRepo) Create(_ context.Context, proposal *domain.LearningProposal) error {
	proposal.ID = int64(len(r.proposals) + 1)
	r.proposals = append(r.proposals, proposal)
	if r.mined == nil {
		r.mined = make(map[int64]bool)
	}
	r.mined[proposal.ThreadID] = true
	return nil
}

type fakeMiner struct {
	candidate *llm.KnowledgeCandidate
}

func (f *fakeMiner) MineKnowledge(context.Context, string, *domain.ObservationSummary) (*llm.KnowledgeCandidate, error) {
	return f.candidate, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type fakeSearcher struct {
	hits []*rag.ChunkHit
}

func (f *fakeSearcher) Search(context.Context, []float32, float64, int) ([]*rag.ChunkHit, error) {
	return f.hits, nil
}

func goodCandidate() *llm.KnowledgeCandidate {
	return &llm.KnowledgeCandidate{
		Type:        "new_article",
		Title:       "Brake pad fitment by model year",
		Content:     strings.Repeat("Always confirm the production month for facelift models. ", 15),
		IntentTags:  []string{"PRODUCT_QUESTION"},
		ProductTags: []string{"brake-pads"},
	}
}

func newTestGenerator(miner KnowledgeMiner, searcher SimilaritySearcher, repo *fakeLearningRepo) *Generator {
	return NewGenerator(GeneratorDeps{
		Messages: &fakeMessageRepo{byThread: map[int64][]*domain.Message{
			1: {{ThreadID: 1, Direction: domain.DirectionInbound, Body: "Does this fit my 2019 model?"}},
		}},
		Observations: &fakeObservationRepo{byThread: map[int64][]*domain.Observation{}},
		Proposals:    repo,
		Miner:        miner,
		Embedder:     fakeEmbedder{},
		Searcher:     searcher,
	})
}

func TestMineThreadCreatesScoredProposal(t *testing.T) {
	repo := &fakeLearningRepo{mined: map[int64]bool{}}
	g := newTestGenerator(&fakeMiner{candidate: goodCandidate()}, &fakeSearcher{}, repo)

	proposal, err := g.MineThread(context.Background(), 1)
	if err != nil {
		t.Fatalf("MineThread: %v", err)
	}
	if proposal == nil {
		t.Fatal("expected a proposal")
	}
	if proposal.Recommend != domain.RecommendAutoApprove {
		t.Fatalf("recommendation = %s (composite %f)", proposal.Recommend, proposal.Confidence)
	}
	if !proposal.AutoApproved || proposal.Status != domain.ProposalApproved {
		t.Fatalf("auto-approved proposal has status %s", proposal.Status)
	}
	if proposal.Breakdown.Composite != proposal.Confidence {
		t.Fatal("confidence must equal composite")
	}
}

func TestMineThreadSkipsAlreadyMined(t *testing.T) {
	repo := &fakeLearningRepo{mined: map[int64]bool{1: true}}
	g := newTestGenerator(&fakeMiner{candidate: goodCandidate()}, &fakeSearcher{}, repo)

	proposal, err := g.MineThread(context.Background(), 1)
	if err != nil {
		t.Fatalf("MineThread: %v", err)
	}
	if proposal != nil {
		t.Fatal("already mined thread must be skipped")
	}
}

func TestMineThreadSkipsWhenNothingLearned(t *testing.T) {
	repo := &fakeLearningRepo{mined: map[int64]bool{}}
	g := newTestGenerator(&fakeMiner{candidate: nil}, &fakeSearcher{}, repo)

	proposal, err := g.MineThread(context.Background(), 1)
	if err != nil {
		t.Fatalf("MineThread: %v", err)
	}
	if proposal != nil || len(repo.proposals) != 0 {
		t.Fatal("no candidate means no proposal")
	}
}

func TestMineThreadDropsDuplicateKnowledge(t *testing.T) {
	repo := &fakeLearningRepo{mined: map[int64]bool{}}
	searcher := &fakeSearcher{hits: []*rag.ChunkHit{{DocID: 42, Score: 0.95}}}
	g := newTestGenerator(&fakeMiner{candidate: goodCandidate()}, searcher, repo)

	proposal, err := g.MineThread(context.Background(), 1)
	if err != nil {
		t.Fatalf("MineThread: %v", err)
	}
	if proposal != nil || len(repo.proposals) != 0 {
		t.Fatal("near-identical knowledge must not create a proposal")
	}
}

func TestMineThreadLinksSimilarDocAsUpdate(t *testing.T) {
	repo := &fakeLearningRepo{mined: map[int64]bool{}}
	searcher := &fakeSearcher{hits: []*rag.ChunkHit{{DocID: 42, Score: 0.82}}}
	g := newTestGenerator(&fakeMiner{candidate: goodCandidate()}, searcher, repo)

	proposal, err := g.MineThread(context.Background(), 1)
	if err != nil {
		t.Fatalf("MineThread: %v", err)
	}
	if proposal == nil {
		t.Fatal("expected a proposal")
	}
	if proposal.Type != domain.ProposalUpdateArticle {
		t.Fatalf("type = %s, want update_article", proposal.Type)
	}
	if proposal.SimilarDocID == nil || *proposal.SimilarDocID != 42 {
		t.Fatal("similar doc not linked")
	}
	if proposal.SimilarityScore == nil || *proposal.SimilarityScore != 0.82 {
		t.Fatal("similarity score not recorded")
	}
}

func TestMineClosedSinceBatches(t *testing.T) {
	repo := &fakeLearningRepo{mined: map[int64]bool{}}
	g := newTestGenerator(&fakeMiner{candidate: goodCandidate()}, &fakeSearcher{}, repo)
	g.threads = &fakeThreadLister{threads: []*domain.Thread{{ID: 1}}}

	created, err := g.MineClosedSince(context.Background(), time.Now().Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("MineClosedSince: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d", created)
	}
}

func TestMineClosedSinceWithoutMiner(t *testing.T) {
	repo := &fakeLearningRepo{mined: map[int64]bool{}}
	g := newTestGenerator(nil, &fakeSearcher{}, repo)
	g.threads = &fakeThreadLister{threads: []*domain.Thread{{ID: 1}}}

	created, err := g.MineClosedSince(context.Background(), time.Now().Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("MineClosedSince: %v", err)
	}
	if created != 0 {
		t.Fatalf("created = %d, want 0", created)
	}
	if len(repo.proposals) != 0 {
		t.Fatal("no proposal should be created without a miner")
	}

	proposal, err := g.MineThread(context.Background(), 1)
	if err != nil || proposal != nil {
		t.Fatalf("MineThread without miner = %v, %v", proposal, err)
	}
}

type fakeThreadLister struct {
	out.ThreadRepository
	threads []*domain.Thread
}

func (f *fakeThreadLister) ListClosedSince(context.Context, time.Time, int) ([]*domain.Thread, error) {
	return f.threads, nil
}
