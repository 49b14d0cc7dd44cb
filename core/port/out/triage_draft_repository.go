package out

import (
	"context"
	"time"

	"triage_server/core/domain"
)

// DraftRepository persists generation attempts. Rows are immutable
// except for the send-time fields.
type DraftRepository interface {
	Create(ctx context.Context, draft *domain.DraftGeneration) error
	GetByID(ctx context.Context, id int64) (*domain.DraftGeneration, error)
	ListByThread(ctx context.Context, threadID int64, limit int) ([]*domain.DraftGeneration, error)
	// LatestPending returns the newest unsent, sendable draft on a thread.
	LatestPending(ctx context.Context, threadID int64) (*domain.DraftGeneration, error)
	MarkSent(ctx context.Context, id int64, finalText string, edited bool, editDistance int, sentBy string, sentAt time.Time) error
}
