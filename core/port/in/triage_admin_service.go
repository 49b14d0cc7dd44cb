package in

import (
	"context"

	"triage_server/core/domain"
)

// SettingsService exposes the runtime-tunable pipeline settings. Edits
// apply on the next triage cycle.
type SettingsService interface {
	Get(ctx context.Context) (*domain.PipelineSettings, error)
	Update(ctx context.Context, settings *domain.PipelineSettings, updatedBy string) (*domain.PipelineSettings, error)
}

// SyncService exposes mailbox polling state and the manual reset of a
// suspended mailbox.
type SyncService interface {
	ListMailboxes(ctx context.Context) ([]*domain.MailboxSyncState, error)
	// ResetMailbox clears the failure count and suspension so polling
	// resumes on the next tick.
	ResetMailbox(ctx context.Context, mailbox string) error
}
