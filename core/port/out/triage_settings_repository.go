package out

import (
	"context"
	"time"

	"triage_server/core/domain"
)

// SettingsRepository stores the runtime-tunable pipeline settings.
// Load returns a snapshot; callers never share a mutable instance.
type SettingsRepository interface {
	Load(ctx context.Context) (*domain.PipelineSettings, error)
	Save(ctx context.Context, settings *domain.PipelineSettings, updatedBy string) error
}

// SyncStateRepository stores per-mailbox polling progress.
type SyncStateRepository interface {
	GetOrCreate(ctx context.Context, mailbox string) (*domain.MailboxSyncState, error)
	// AdvanceCursor moves the high-water mark forward; smaller cursors
	// are ignored.
	AdvanceCursor(ctx context.Context, mailbox string, cursor uint64, polledAt time.Time) error
	RecordFailure(ctx context.Context, mailbox string, errMsg string, suspendAt int) (*domain.MailboxSyncState, error)
	RecordSuccess(ctx context.Context, mailbox string) error
	Reset(ctx context.Context, mailbox string) error
	List(ctx context.Context) ([]*domain.MailboxSyncState, error)
}
