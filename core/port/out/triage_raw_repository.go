package out

import (
	"context"

	"triage_server/core/domain"
)

// RawMessageRepository stores full inbound payloads outside the
// relational schema.
type RawMessageRepository interface {
	Save(ctx context.Context, raw *domain.RawMessage) error
	GetByMessageID(ctx context.Context, messageID int64) (*domain.RawMessage, error)
	DeleteByThread(ctx context.Context, threadID int64) (int64, error)
}
