package triage

import (
	"context"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

// DraftReview is the review queue over generated drafts. Sending goes
// through the pipeline so the outbound message, audit trail and state
// transition stay consistent with autosend.
type DraftReview struct {
	drafts   out.DraftRepository
	pipeline *Pipeline
}

func NewDraftReview(drafts out.DraftRepository, pipeline *Pipeline) *DraftReview {
	return &DraftReview{drafts: drafts, pipeline: pipeline}
}

var _ in.DraftService = (*DraftReview)(nil)

func (r *DraftReview) ListByThread(ctx context.Context, threadID int64, limit int) ([]*domain.DraftGeneration, error) {
	if limit <= 0 {
		limit = 20
	}
	drafts, err := r.drafts.ListByThread(ctx, threadID, limit)
	if err != nil {
		return nil, apperr.DatabaseError("list drafts", err)
	}
	return drafts, nil
}

func (r *DraftReview) Get(ctx context.Context, id int64) (*domain.DraftGeneration, error) {
	draft, err := r.drafts.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.DatabaseError("load draft", err)
	}
	if draft == nil {
		return nil, apperr.NotFound("draft")
	}
	return draft, nil
}

func (r *DraftReview) Send(ctx context.Context, draftID int64, finalText, sentBy string) (*domain.DraftGeneration, error) {
	return r.pipeline.ApproveAndSend(ctx, draftID, finalText, sentBy)
}
