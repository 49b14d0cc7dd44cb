package out

import (
	"context"
	"time"

	"triage_server/core/domain"
)

// LearningRepository persists learning proposals.
type LearningRepository interface {
	Create(ctx context.Context, proposal *domain.LearningProposal) error
	GetByID(ctx context.Context, id int64) (*domain.LearningProposal, error)
	List(ctx context.Context, status *domain.ProposalStatus, limit, offset int) ([]*domain.LearningProposal, int, error)
	// ExistsForThread guards against re-mining the same thread.
	ExistsForThread(ctx context.Context, threadID int64) (bool, error)
	UpdateStatus(ctx context.Context, id int64, status domain.ProposalStatus, reviewedBy string, reviewedAt time.Time) error
}
