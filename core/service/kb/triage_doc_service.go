package kb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/core/service/learning"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
)

// DocService owns the knowledge document lifecycle. Publishing queues
// an indexing job; retrieval only ever sees published documents.
type DocService struct {
	docs      out.KBDocRepository
	chunks    out.KBChunkRepository
	proposals out.LearningRepository
	producer  out.JobProducer
	scorer    *learning.ConfidenceScorer
	log       *logger.Logger
}

func NewDocService(docs out.KBDocRepository, chunks out.KBChunkRepository, proposals out.LearningRepository, producer out.JobProducer) *DocService {
	return &DocService{
		docs:      docs,
		chunks:    chunks,
		proposals: proposals,
		producer:  producer,
		scorer:    learning.NewConfidenceScorer(),
		log:       logger.Default().WithField("component", "kb_docs"),
	}
}

var _ in.KBService = (*DocService)(nil)

// CreateDoc stores a new document and its chunk set.
func (s *DocService) CreateDoc(ctx context.Context, doc *domain.KBDoc) (*domain.KBDoc, error) {
	if doc.Title == "" || doc.Body == "" {
		return nil, apperr.BadRequest("title and body are required")
	}
	if doc.Status == "" {
		doc.Status = domain.DocStatusProposed
	}
	if doc.Source == "" {
		doc.Source = domain.DocSourceManual
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, apperr.DatabaseError("create kb doc", err)
	}
	if err := s.chunks.ReplaceForDoc(ctx, doc.ID, ChunkBody(doc.ID, doc.Body)); err != nil {
		return nil, apperr.DatabaseError("chunk kb doc", err)
	}
	return doc, nil
}

// GetDoc loads one document.
func (s *DocService) GetDoc(ctx context.Context, id int64) (*domain.KBDoc, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.DatabaseError("load kb doc", err)
	}
	if doc == nil {
		return nil, apperr.NotFound("kb doc")
	}
	return doc, nil
}

// ListDocs pages documents, optionally by status.
func (s *DocService) ListDocs(ctx context.Context, status *domain.DocStatus, limit, offset int) ([]*domain.KBDoc, int, error) {
	docs, total, err := s.docs.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, apperr.DatabaseError("list kb docs", err)
	}
	return docs, total, nil
}

// UpdateDoc rewrites a document. A body change regenerates the chunk
// set as a whole, dropping any existing embeddings, and re-queues
// indexing when the document is published.
func (s *DocService) UpdateDoc(ctx context.Context, doc *domain.KBDoc) (*domain.KBDoc, error) {
	existing, err := s.docs.GetByID(ctx, doc.ID)
	if err != nil {
		return nil, apperr.DatabaseError("load kb doc", err)
	}
	if existing == nil {
		return nil, apperr.NotFound("kb doc")
	}

	doc.UpdatedAt = time.Now().UTC()
	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, apperr.DatabaseError("update kb doc", err)
	}

	if doc.Body != existing.Body {
		if err := s.chunks.ReplaceForDoc(ctx, doc.ID, ChunkBody(doc.ID, doc.Body)); err != nil {
			return nil, apperr.DatabaseError("rechunk kb doc", err)
		}
		if doc.Status == domain.DocStatusPublished {
			s.queueIndex(ctx, doc.ID)
		}
	}
	return doc, nil
}

// Publish flips a document to published and queues embedding.
func (s *DocService) Publish(ctx context.Context, docID int64) error {
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return apperr.DatabaseError("load kb doc", err)
	}
	if doc == nil {
		return apperr.NotFound("kb doc")
	}
	if doc.Status == domain.DocStatusPublished {
		return nil
	}
	if err := s.docs.UpdateStatus(ctx, docID, domain.DocStatusPublished); err != nil {
		return apperr.DatabaseError("publish kb doc", err)
	}
	s.queueIndex(ctx, docID)
	s.log.Info("kb doc %d published", docID)
	return nil
}

// UpdateDocStatus moves a document through review without publishing
// side effects.
func (s *DocService) UpdateDocStatus(ctx context.Context, docID int64, status domain.DocStatus) error {
	if status == domain.DocStatusPublished {
		return s.Publish(ctx, docID)
	}
	if err := s.docs.UpdateStatus(ctx, docID, status); err != nil {
		return apperr.DatabaseError("update kb doc status", err)
	}
	return nil
}

// MaterializeProposal turns an approved learning proposal into a
// published document.
func (s *DocService) MaterializeProposal(ctx context.Context, proposalID int64, reviewedBy string) (*domain.KBDoc, error) {
	proposal, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, apperr.DatabaseError("load proposal", err)
	}
	if proposal == nil {
		return nil, apperr.NotFound("proposal")
	}
	if proposal.Status != domain.ProposalApproved {
		return nil, apperr.Conflict("only approved proposals can be materialized")
	}

	doc := &domain.KBDoc{
		Title:       proposal.Title,
		Body:        proposal.Content,
		Status:      domain.DocStatusPublished,
		Source:      domain.DocSourceLearning,
		IntentTags:  proposal.IntentTags,
		ProductTags: proposal.ProductTags,
	}
	if _, err := s.CreateDoc(ctx, doc); err != nil {
		return nil, err
	}
	s.queueIndex(ctx, doc.ID)

	now := time.Now().UTC()
	if err := s.proposals.UpdateStatus(ctx, proposalID, domain.ProposalPublished, reviewedBy, now); err != nil {
		s.log.WithError(err).Error("doc %d created but proposal %d not marked published", doc.ID, proposalID)
	}
	return doc, nil
}

// ScoreImportQueue runs the shared confidence scorer over imported
// documents awaiting curation. Auto-rejected imports are dropped from
// the queue; auto-approved ones are published directly.
func (s *DocService) ScoreImportQueue(ctx context.Context, limit int) (int, error) {
	docs, _, err := s.docs.ListImportQueue(ctx, limit, 0)
	if err != nil {
		return 0, apperr.DatabaseError("list import queue", err)
	}

	scored := 0
	for _, doc := range docs {
		breakdown := s.scorer.Score(doc.Title, doc.Body, doc.IntentTags, doc.ProductTags)
		band := learning.Recommend(breakdown.Composite)
		if err := s.docs.SetReviewScore(ctx, doc.ID, breakdown.Composite, string(band)); err != nil {
			s.log.WithError(err).Error("failed to store review score for doc %d", doc.ID)
			continue
		}
		scored++

		switch band {
		case domain.RecommendAutoApprove:
			if err := s.Publish(ctx, doc.ID); err != nil {
				s.log.WithError(err).Error("failed to publish auto-approved import %d", doc.ID)
			}
		case domain.RecommendAutoReject:
			if err := s.docs.UpdateStatus(ctx, doc.ID, domain.DocStatusRejected); err != nil {
				s.log.WithError(err).Error("failed to reject import %d", doc.ID)
			}
		}
	}
	return scored, nil
}

// ListImportQueue pages imported documents awaiting curation.
func (s *DocService) ListImportQueue(ctx context.Context, limit, offset int) ([]*domain.KBDoc, int, error) {
	docs, total, err := s.docs.ListImportQueue(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperr.DatabaseError("list import queue", err)
	}
	return docs, total, nil
}

// ListProposals pages learning proposals, optionally by status.
func (s *DocService) ListProposals(ctx context.Context, status *domain.ProposalStatus, limit, offset int) ([]*domain.LearningProposal, int, error) {
	proposals, total, err := s.proposals.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, apperr.DatabaseError("list proposals", err)
	}
	return proposals, total, nil
}

// ReviewProposal records a human verdict on a pending proposal.
func (s *DocService) ReviewProposal(ctx context.Context, id int64, approve bool, reviewedBy string) error {
	proposal, err := s.proposals.GetByID(ctx, id)
	if err != nil {
		return apperr.DatabaseError("load proposal", err)
	}
	if proposal == nil {
		return apperr.NotFound("proposal")
	}
	if proposal.Status != domain.ProposalPending {
		return apperr.Conflict("proposal already reviewed")
	}
	status := domain.ProposalRejected
	if approve {
		status = domain.ProposalApproved
	}
	if err := s.proposals.UpdateStatus(ctx, id, status, reviewedBy, time.Now().UTC()); err != nil {
		return apperr.DatabaseError("review proposal", err)
	}
	return nil
}

func (s *DocService) queueIndex(ctx context.Context, docID int64) {
	job := &out.IndexJob{
		JobID:    uuid.NewString(),
		DocID:    docID,
		QueuedAt: time.Now().UTC(),
	}
	if err := s.producer.PublishIndex(ctx, job); err != nil {
		s.log.WithError(err).Error("failed to queue indexing for doc %d", docID)
	}
}
