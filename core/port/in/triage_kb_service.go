package in

import (
	"context"

	"triage_server/core/domain"
)

// KBService exposes the knowledge-base lifecycle and the learning
// review queue.
type KBService interface {
	CreateDoc(ctx context.Context, doc *domain.KBDoc) (*domain.KBDoc, error)
	GetDoc(ctx context.Context, id int64) (*domain.KBDoc, error)
	ListDocs(ctx context.Context, status *domain.DocStatus, limit, offset int) ([]*domain.KBDoc, int, error)
	UpdateDoc(ctx context.Context, doc *domain.KBDoc) (*domain.KBDoc, error)
	UpdateDocStatus(ctx context.Context, id int64, status domain.DocStatus) error

	// Import review queue.
	ListImportQueue(ctx context.Context, limit, offset int) ([]*domain.KBDoc, int, error)
	ScoreImportQueue(ctx context.Context, limit int) (int, error)

	// Learning proposal review.
	ListProposals(ctx context.Context, status *domain.ProposalStatus, limit, offset int) ([]*domain.LearningProposal, int, error)
	ReviewProposal(ctx context.Context, id int64, approve bool, reviewedBy string) error
	// MaterializeProposal publishes an approved proposal as a document.
	MaterializeProposal(ctx context.Context, id int64, reviewedBy string) (*domain.KBDoc, error)
}
