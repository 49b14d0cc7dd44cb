package in

import (
	"context"

	"triage_server/core/domain"
)

// DraftService exposes the review queue over generated drafts.
type DraftService interface {
	ListByThread(ctx context.Context, threadID int64, limit int) ([]*domain.DraftGeneration, error)
	Get(ctx context.Context, id int64) (*domain.DraftGeneration, error)
	// Send delivers an approved draft. finalText empty sends the
	// generated text unchanged; blocked drafts are refused.
	Send(ctx context.Context, draftID int64, finalText, sentBy string) (*domain.DraftGeneration, error)
}
