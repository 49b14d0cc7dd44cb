package kb

import (
	"context"
	"strings"
	"testing"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

func TestChunkBodyOrdering(t *testing.T) {
	body := "First paragraph about fitment.\n\nSecond paragraph about warranty.\n\nThird paragraph about returns."
	chunks := ChunkBody(7, body)
	if len(chunks) == 0 {
		t.Fatal("no chunks")
	}
	for i, c := range chunks {
		if c.Seq != i {
			t.Fatalf("chunk %d has seq %d", i, c.Seq)
		}
		if c.DocID != 7 {
			t.Fatalf("chunk doc id = %d", c.DocID)
		}
	}
}

func TestChunkBodyEmpty(t *testing.T) {
	if got := ChunkBody(1, "  \n\n "); got != nil {
		t.Fatalf("expected nil for blank body, got %d chunks", len(got))
	}
}

func TestChunkBodyPacksParagraphs(t *testing.T) {
	para := strings.Repeat("word ", 60)
	body := strings.Join([]string{para, para, para, para}, "\n\n")
	chunks := ChunkBody(1, body)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c.Text) > chunkMaxLen {
			t.Fatalf("chunk exceeds max length: %d", len(c.Text))
		}
	}
}

func TestChunkBodySplitsOversizedParagraph(t *testing.T) {
	body := strings.Repeat("This sentence repeats to build one very long paragraph. ", 60)
	chunks := ChunkBody(1, body)
	if len(chunks) < 2 {
		t.Fatalf("oversized paragraph should split, got %d chunks", len(chunks))
	}
	for _, c := range chunks {
		if len(c.Text) > chunkMaxLen {
			t.Fatalf("chunk exceeds max length: %d", len(c.Text))
		}
	}
}

type fakeDocRepo struct {
	out.KBDocRepository
	docs    map[int64]*domain.KBDoc
	nextID  int64
	imports []*domain.KBDoc
	scores  map[int64]string
}

func newFakeDocRepo(docs ...*domain.KBDoc) *fakeDocRepo {
	r := &fakeDocRepo{docs: make(map[int64]*domain.KBDoc), scores: make(map[int64]string)}
	for _, d := range docs {
		r.docs[d.ID] = d
		if d.ID > r.nextID {
			r.nextID = d.ID
		}
	}
	return r
}

func (r *fakeDocRepo) Create(_ context.Context, doc *domain.KBDoc) error {
	r.nextID++
	doc.ID = r.nextID
	r.docs[doc.ID] = doc
	return nil
}

func (r *fakeDocRepo) GetByID(_ context.Context, id int64) (*domain.KBDoc, error) {
	return r.docs[id], nil
}

func (r *fakeDocRepo) Update(_ context.Context, doc *domain.KBDoc) error {
	r.docs[doc.ID] = doc
	return nil
}

func (r *fakeDocRepo) UpdateStatus(_ context.Context, id int64, status domain.DocStatus) error {
	if d, ok := r.docs[id]; ok {
		d.Status = status
	}
	return nil
}

func (r *fakeDocRepo) ListImportQueue(_ context.Context, _, _ int) ([]*domain.KBDoc, int, error) {
	return r.imports, len(r.imports), nil
}

func (r *fakeDocRepo) SetReviewScore(_ context.Context, id int64, score float64, band string) error {
	r.scores[id] = band
	if d, ok := r.docs[id]; ok {
		d.ReviewScore = &score
		d.ReviewBand = &band
	}
	return nil
}

type fakeChunkRepo struct {
	out.KBChunkRepository
	byDoc map[int64][]*domain.KBChunk
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{byDoc: make(map[int64][]*domain.KBChunk)}
}

func (r *fakeChunkRepo) ReplaceForDoc(_ context.Context, docID int64, chunks []*domain.KBChunk) error {
	r.byDoc[docID] = chunks
	return nil
}

type fakeProposalRepo struct {
	out.LearningRepository
	proposals map[int64]*domain.LearningProposal
	published map[int64]bool
}

func (r *fakeProposalRepo) GetByID(_ context.Context, id int64) (*domain.LearningProposal, error) {
	return r.proposals[id], nil
}

func (r *fakeProposalRepo) UpdateStatus(_ context.Context, id int64, status domain.ProposalStatus, _ string, _ time.Time) error {
	if r.published == nil {
		r.published = make(map[int64]bool)
	}
	if status == domain.ProposalPublished {
		r.published[id] = true
	}
	return nil
}

type fakeProducer struct {
	out.JobProducer
	indexJobs []*out.IndexJob
}

func (p *fakeProducer) PublishIndex(_ context.Context, job *out.IndexJob) error {
	p.indexJobs = append(p.indexJobs, job)
	return nil
}

func TestUpdateBodyChangeRegeneratesChunks(t *testing.T) {
	doc := &domain.KBDoc{ID: 1, Title: "t", Body: "old body.", Status: domain.DocStatusPublished}
	docs := newFakeDocRepo(doc)
	chunks := newFakeChunkRepo()
	producer := &fakeProducer{}
	s := NewDocService(docs, chunks, &fakeProposalRepo{}, producer)

	updated := *doc
	updated.Body = "brand new body with different content."
	if _, err := s.UpdateDoc(context.Background(), &updated); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(chunks.byDoc[1]) == 0 {
		t.Fatal("chunks not regenerated")
	}
	if len(producer.indexJobs) != 1 {
		t.Fatal("published doc body change must queue indexing")
	}
}

func TestUpdateWithoutBodyChangeKeepsChunks(t *testing.T) {
	doc := &domain.KBDoc{ID: 1, Title: "t", Body: "same body.", Status: domain.DocStatusPublished}
	docs := newFakeDocRepo(doc)
	chunks := newFakeChunkRepo()
	producer := &fakeProducer{}
	s := NewDocService(docs, chunks, &fakeProposalRepo{}, producer)

	updated := *doc
	updated.Title = "retitled"
	if _, err := s.UpdateDoc(context.Background(), &updated); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(chunks.byDoc[1]) != 0 {
		t.Fatal("chunks must not be touched when the body is unchanged")
	}
	if len(producer.indexJobs) != 0 {
		t.Fatal("no indexing without a body change")
	}
}

func TestPublishQueuesIndexing(t *testing.T) {
	doc := &domain.KBDoc{ID: 1, Title: "t", Body: "b.", Status: domain.DocStatusApproved}
	docs := newFakeDocRepo(doc)
	producer := &fakeProducer{}
	s := NewDocService(docs, newFakeChunkRepo(), &fakeProposalRepo{}, producer)

	if err := s.Publish(context.Background(), 1); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if doc.Status != domain.DocStatusPublished {
		t.Fatalf("status = %s", doc.Status)
	}
	if len(producer.indexJobs) != 1 || producer.indexJobs[0].DocID != 1 {
		t.Fatal("index job not queued")
	}
}

func TestMaterializeProposal(t *testing.T) {
	proposals := &fakeProposalRepo{proposals: map[int64]*domain.LearningProposal{
		5: {
			ID:         5,
			Title:      "Brake pad fitment",
			Content:    "Always check production month for facelift models.",
			IntentTags: []string{"PRODUCT_QUESTION"},
			Status:     domain.ProposalApproved,
		},
	}}
	docs := newFakeDocRepo()
	s := NewDocService(docs, newFakeChunkRepo(), proposals, &fakeProducer{})

	doc, err := s.MaterializeProposal(context.Background(), 5, "agent-7")
	if err != nil {
		t.Fatalf("MaterializeProposal: %v", err)
	}
	if doc.Status != domain.DocStatusPublished || doc.Source != domain.DocSourceLearning {
		t.Fatalf("doc status=%s source=%s", doc.Status, doc.Source)
	}
	if !proposals.published[5] {
		t.Fatal("proposal not marked published")
	}
}

func TestMaterializeProposalRejectsPending(t *testing.T) {
	proposals := &fakeProposalRepo{proposals: map[int64]*domain.LearningProposal{
		5: {ID: 5, Title: "t", Content: "c", Status: domain.ProposalPending},
	}}
	s := NewDocService(newFakeDocRepo(), newFakeChunkRepo(), proposals, &fakeProducer{})

	if _, err := s.MaterializeProposal(context.Background(), 5, "agent-7"); err == nil {
		t.Fatal("pending proposal must not materialize")
	}
}

func TestScoreImportQueueBands(t *testing.T) {
	rich := &domain.KBDoc{
		ID:          1,
		Title:       "Return policy for electrical parts",
		Body:        strings.Repeat("Electrical parts are non-returnable once installed. Check connector type first. ", 12),
		Status:      domain.DocStatusProposed,
		Source:      domain.DocSourceImport,
		IntentTags:  []string{"RETURN_REQUEST"},
		ProductTags: []string{"electrical"},
	}
	stub := &domain.KBDoc{ID: 2, Title: "", Body: "tbd", Status: domain.DocStatusProposed, Source: domain.DocSourceImport}

	docs := newFakeDocRepo(rich, stub)
	docs.imports = []*domain.KBDoc{rich, stub}
	producer := &fakeProducer{}
	s := NewDocService(docs, newFakeChunkRepo(), &fakeProposalRepo{}, producer)

	scored, err := s.ScoreImportQueue(context.Background(), 10)
	if err != nil {
		t.Fatalf("ScoreImportQueue: %v", err)
	}
	if scored != 2 {
		t.Fatalf("scored = %d", scored)
	}
	if rich.Status != domain.DocStatusPublished {
		t.Fatalf("rich import status = %s, want published", rich.Status)
	}
	if stub.Status != domain.DocStatusRejected {
		t.Fatalf("stub import status = %s, want rejected", stub.Status)
	}
	if len(producer.indexJobs) != 1 {
		t.Fatal("auto-approved import must queue indexing")
	}
}
