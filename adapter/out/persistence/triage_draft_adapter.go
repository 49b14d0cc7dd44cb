package persistence

import (
	"context"
	"database/sql"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type DraftAdapter struct {
	db *sqlx.DB
}

func NewDraftAdapter(db *sqlx.DB) *DraftAdapter {
	return &DraftAdapter{db: db}
}

type draftEntity struct {
	ID           int64          `db:"id"`
	ThreadID     int64          `db:"thread_id"`
	MessageID    int64          `db:"message_id"`
	Intent       string         `db:"intent"`
	Confidence   float64        `db:"confidence"`
	ChunkIDs     pq.Int64Array  `db:"chunk_ids"`
	RawText      string         `db:"raw_text"`
	FinalText    string         `db:"final_text"`
	Citations    []byte         `db:"citations"`
	NoGrounding  bool           `db:"no_grounding"`
	Verdict      string         `db:"verdict"`
	Violations   pq.StringArray `db:"violations"`
	TokensUsed   int            `db:"tokens_used"`
	WasSent      bool           `db:"was_sent"`
	WasEdited    bool           `db:"was_edited"`
	EditDistance int            `db:"edit_distance"`
	SentAt       sql.NullTime   `db:"sent_at"`
	SentBy       sql.NullString `db:"sent_by"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (e *draftEntity) toDomain() (*domain.DraftGeneration, error) {
	d := &domain.DraftGeneration{
		ID:           e.ID,
		ThreadID:     e.ThreadID,
		MessageID:    e.MessageID,
		Intent:       domain.Intent(e.Intent),
		Confidence:   e.Confidence,
		ChunkIDs:     e.ChunkIDs,
		RawText:      e.RawText,
		FinalText:    e.FinalText,
		NoGrounding:  e.NoGrounding,
		Verdict:      domain.GateVerdict(e.Verdict),
		Violations:   e.Violations,
		TokensUsed:   e.TokensUsed,
		WasSent:      e.WasSent,
		WasEdited:    e.WasEdited,
		EditDistance: e.EditDistance,
		CreatedAt:    e.CreatedAt,
	}
	if e.SentAt.Valid {
		d.SentAt = &e.SentAt.Time
	}
	if e.SentBy.Valid {
		d.SentBy = &e.SentBy.String
	}
	if err := fromJSON(e.Citations, &d.Citations); err != nil {
		return nil, err
	}
	return d, nil
}

func (a *DraftAdapter) Create(ctx context.Context, draft *domain.DraftGeneration) error {
	citations, err := toJSON(draft.Citations)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO draft_generations (
			thread_id, message_id, intent, confidence, chunk_ids,
			raw_text, final_text, citations, no_grounding, verdict,
			violations, tokens_used
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`
	return a.db.QueryRowContext(ctx, query,
		draft.ThreadID,
		draft.MessageID,
		string(draft.Intent),
		draft.Confidence,
		pq.Array(draft.ChunkIDs),
		draft.RawText,
		draft.FinalText,
		citations,
		draft.NoGrounding,
		string(draft.Verdict),
		pq.Array(draft.Violations),
		draft.TokensUsed,
	).Scan(&draft.ID, &draft.CreatedAt)
}

func (a *DraftAdapter) GetByID(ctx context.Context, id int64) (*domain.DraftGeneration, error) {
	return a.getOne(ctx, `SELECT * FROM draft_generations WHERE id = $1`, id)
}

func (a *DraftAdapter) ListByThread(ctx context.Context, threadID int64, limit int) ([]*domain.DraftGeneration, error) {
	var entities []draftEntity
	query := `SELECT * FROM draft_generations WHERE thread_id = $1 ORDER BY id DESC LIMIT $2`
	if err := a.db.SelectContext(ctx, &entities, query, threadID, limit); err != nil {
		return nil, err
	}

	drafts := make([]*domain.DraftGeneration, len(entities))
	for i := range entities {
		d, err := entities[i].toDomain()
		if err != nil {
			return nil, err
		}
		drafts[i] = d
	}
	return drafts, nil
}

func (a *DraftAdapter) LatestPending(ctx context.Context, threadID int64) (*domain.DraftGeneration, error) {
	query := `
		SELECT * FROM draft_generations
		WHERE thread_id = $1 AND was_sent = FALSE AND verdict != 'blocked'
		ORDER BY id DESC
		LIMIT 1
	`
	return a.getOne(ctx, query, threadID)
}

func (a *DraftAdapter) MarkSent(ctx context.Context, id int64, finalText string, edited bool, editDistance int, sentBy string, sentAt time.Time) error {
	query := `
		UPDATE draft_generations SET
			final_text = $1,
			was_sent = TRUE,
			was_edited = $2,
			edit_distance = $3,
			sent_by = $4,
			sent_at = $5
		WHERE id = $6
	`
	_, err := a.db.ExecContext(ctx, query, finalText, edited, editDistance, sentBy, sentAt, id)
	return err
}

func (a *DraftAdapter) getOne(ctx context.Context, query string, args ...interface{}) (*domain.DraftGeneration, error) {
	var entity draftEntity
	if err := a.db.GetContext(ctx, &entity, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return entity.toDomain()
}

var _ out.DraftRepository = (*DraftAdapter)(nil)
