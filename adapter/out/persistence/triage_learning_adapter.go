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

type LearningAdapter struct {
	db *sqlx.DB
}

func NewLearningAdapter(db *sqlx.DB) *LearningAdapter {
	return &LearningAdapter{db: db}
}

type proposalEntity struct {
	ID              int64           `db:"id"`
	ThreadID        int64           `db:"thread_id"`
	Type            string          `db:"type"`
	Title           string          `db:"title"`
	Content         string          `db:"content"`
	IntentTags      pq.StringArray  `db:"intent_tags"`
	ProductTags     pq.StringArray  `db:"product_tags"`
	Confidence      float64         `db:"confidence"`
	Breakdown       []byte          `db:"breakdown"`
	Recommend       string          `db:"recommendation"`
	AutoApproved    bool            `db:"auto_approved"`
	Status          string          `db:"status"`
	SimilarDocID    sql.NullInt64   `db:"similar_doc_id"`
	SimilarityScore sql.NullFloat64 `db:"similarity_score"`
	CreatedAt       time.Time       `db:"created_at"`
	ReviewedAt      sql.NullTime    `db:"reviewed_at"`
	ReviewedBy      sql.NullString  `db:"reviewed_by"`
}

func (e *proposalEntity) toDomain() (*domain.LearningProposal, error) {
	p := &domain.LearningProposal{
		ID:           e.ID,
		ThreadID:     e.ThreadID,
		Type:         domain.ProposalType(e.Type),
		Title:        e.Title,
		Content:      e.Content,
		IntentTags:   e.IntentTags,
		ProductTags:  e.ProductTags,
		Confidence:   e.Confidence,
		Recommend:    domain.Recommendation(e.Recommend),
		AutoApproved: e.AutoApproved,
		Status:       domain.ProposalStatus(e.Status),
		CreatedAt:    e.CreatedAt,
	}
	if err := fromJSON(e.Breakdown, &p.Breakdown); err != nil {
		return nil, err
	}
	if e.SimilarDocID.Valid {
		p.SimilarDocID = &e.SimilarDocID.Int64
	}
	if e.SimilarityScore.Valid {
		p.SimilarityScore = &e.SimilarityScore.Float64
	}
	if e.ReviewedAt.Valid {
		p.ReviewedAt = &e.ReviewedAt.Time
	}
	if e.ReviewedBy.Valid {
		p.ReviewedBy = &e.ReviewedBy.String
	}
	return p, nil
}

func (a *LearningAdapter) Create(ctx context.Context, proposal *domain.LearningProposal) error {
	breakdown, err := toJSON(proposal.Breakdown)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO learning_proposals (
			thread_id, type, title, content, intent_tags, product_tags,
			confidence, breakdown, recommendation, auto_approved, status,
			similar_doc_id, similarity_score
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at
	`
	return a.db.QueryRowContext(ctx, query,
		proposal.ThreadID,
		string(proposal.Type),
		proposal.Title,
		proposal.Content,
		pq.Array(proposal.IntentTags),
		pq.Array(proposal.ProductTags),
		proposal.Confidence,
		breakdown,
		string(proposal.Recommend),
		proposal.AutoApproved,
		string(proposal.Status),
		proposal.SimilarDocID,
		proposal.SimilarityScore,
	).Scan(&proposal.ID, &proposal.CreatedAt)
}

func (a *LearningAdapter) GetByID(ctx context.Context, id int64) (*domain.LearningProposal, error) {
	var entity proposalEntity
	if err := a.db.GetContext(ctx, &entity, `SELECT * FROM learning_proposals WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return entity.toDomain()
}

func (a *LearningAdapter) List(ctx context.Context, status *domain.ProposalStatus, limit, offset int) ([]*domain.LearningProposal, int, error) {
	where := ""
	args := []interface{}{}
	if status != nil {
		where = " WHERE status = $1"
		args = append(args, string(*status))
	}

	var total int
	if err := a.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM learning_proposals"+where, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := "SELECT * FROM learning_proposals" + where +
		" ORDER BY id DESC LIMIT $" + itoa(len(args)-1) + " OFFSET $" + itoa(len(args))

	var entities []proposalEntity
	if err := a.db.SelectContext(ctx, &entities, query, args...); err != nil {
		return nil, 0, err
	}

	proposals := make([]*domain.LearningProposal, len(entities))
	for i := range entities {
		p, err := entities[i].toDomain()
		if err != nil {
			return nil, 0, err
		}
		proposals[i] = p
	}
	return proposals, total, nil
}

func (a *LearningAdapter) ExistsForThread(ctx context.Context, threadID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM learning_proposals WHERE thread_id = $1)`
	if err := a.db.GetContext(ctx, &exists, query, threadID); err != nil {
		return false, err
	}
	return exists, nil
}

func (a *LearningAdapter) UpdateStatus(ctx context.Context, id int64, status domain.ProposalStatus, reviewedBy string, reviewedAt time.Time) error {
	query := `
		UPDATE learning_proposals SET
			status = $1,
			reviewed_by = $2,
			reviewed_at = $3
		WHERE id = $4
	`
	_, err := a.db.ExecContext(ctx, query, string(status), toNullableString(reviewedBy), reviewedAt, id)
	return err
}

var _ out.LearningRepository = (*LearningAdapter)(nil)
