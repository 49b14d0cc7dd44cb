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

type KBDocAdapter struct {
	db *sqlx.DB
}

func NewKBDocAdapter(db *sqlx.DB) *KBDocAdapter {
	return &KBDocAdapter{db: db}
}

type kbDocEntity struct {
	ID          int64           `db:"id"`
	Title       string          `db:"title"`
	Body        string          `db:"body"`
	Status      string          `db:"status"`
	Source      string          `db:"source"`
	IntentTags  pq.StringArray  `db:"intent_tags"`
	ProductTags pq.StringArray  `db:"product_tags"`
	VehicleTags pq.StringArray  `db:"vehicle_tags"`
	ReviewScore sql.NullFloat64 `db:"review_score"`
	ReviewBand  sql.NullString  `db:"review_band"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func (e *kbDocEntity) toDomain() *domain.KBDoc {
	d := &domain.KBDoc{
		ID:          e.ID,
		Title:       e.Title,
		Body:        e.Body,
		Status:      domain.DocStatus(e.Status),
		Source:      domain.DocSource(e.Source),
		IntentTags:  e.IntentTags,
		ProductTags: e.ProductTags,
		VehicleTags: e.VehicleTags,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if e.ReviewScore.Valid {
		d.ReviewScore = &e.ReviewScore.Float64
	}
	if e.ReviewBand.Valid {
		d.ReviewBand = &e.ReviewBand.String
	}
	return d
}

func (a *KBDocAdapter) Create(ctx context.Context, doc *domain.KBDoc) error {
	query := `
		INSERT INTO kb_docs (title, body, status, source, intent_tags, product_tags, vehicle_tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	return a.db.QueryRowContext(ctx, query,
		doc.Title,
		doc.Body,
		string(doc.Status),
		string(doc.Source),
		pq.Array(doc.IntentTags),
		pq.Array(doc.ProductTags),
		pq.Array(doc.VehicleTags),
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
}

func (a *KBDocAdapter) GetByID(ctx context.Context, id int64) (*domain.KBDoc, error) {
	var entity kbDocEntity
	if err := a.db.GetContext(ctx, &entity, `SELECT * FROM kb_docs WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return entity.toDomain(), nil
}

func (a *KBDocAdapter) List(ctx context.Context, status *domain.DocStatus, limit, offset int) ([]*domain.KBDoc, int, error) {
	where := ""
	args := []interface{}{}
	if status != nil {
		where = " WHERE status = $1"
		args = append(args, string(*status))
	}

	var total int
	if err := a.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM kb_docs"+where, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := "SELECT * FROM kb_docs" + where +
		" ORDER BY updated_at DESC LIMIT $" + itoa(len(args)-1) + " OFFSET $" + itoa(len(args))

	var entities []kbDocEntity
	if err := a.db.SelectContext(ctx, &entities, query, args...); err != nil {
		return nil, 0, err
	}
	return kbDocsToDomain(entities), total, nil
}

func (a *KBDocAdapter) Update(ctx context.Context, doc *domain.KBDoc) error {
	query := `
		UPDATE kb_docs SET
			title = $1,
			body = $2,
			intent_tags = $3,
			product_tags = $4,
			vehicle_tags = $5,
			updated_at = NOW()
		WHERE id = $6
	`
	_, err := a.db.ExecContext(ctx, query,
		doc.Title,
		doc.Body,
		pq.Array(doc.IntentTags),
		pq.Array(doc.ProductTags),
		pq.Array(doc.VehicleTags),
		doc.ID,
	)
	return err
}

func (a *KBDocAdapter) UpdateStatus(ctx context.Context, id int64, status domain.DocStatus) error {
	query := `UPDATE kb_docs SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := a.db.ExecContext(ctx, query, string(status), id)
	return err
}

func (a *KBDocAdapter) ListImportQueue(ctx context.Context, limit, offset int) ([]*domain.KBDoc, int, error) {
	where := ` WHERE source = 'import' AND status = 'proposed'`

	var total int
	if err := a.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM kb_docs"+where); err != nil {
		return nil, 0, err
	}

	var entities []kbDocEntity
	query := "SELECT * FROM kb_docs" + where +
		" ORDER BY review_score ASC NULLS FIRST, id ASC LIMIT $1 OFFSET $2"
	if err := a.db.SelectContext(ctx, &entities, query, limit, offset); err != nil {
		return nil, 0, err
	}
	return kbDocsToDomain(entities), total, nil
}

func (a *KBDocAdapter) SetReviewScore(ctx context.Context, id int64, score float64, band string) error {
	query := `UPDATE kb_docs SET review_score = $1, review_band = $2, updated_at = NOW() WHERE id = $3`
	_, err := a.db.ExecContext(ctx, query, score, band, id)
	return err
}

func kbDocsToDomain(entities []kbDocEntity) []*domain.KBDoc {
	docs := make([]*domain.KBDoc, len(entities))
	for i := range entities {
		docs[i] = entities[i].toDomain()
	}
	return docs
}

var _ out.KBDocRepository = (*KBDocAdapter)(nil)

type KBChunkAdapter struct {
	db *sqlx.DB
}

func NewKBChunkAdapter(db *sqlx.DB) *KBChunkAdapter {
	return &KBChunkAdapter{db: db}
}

type kbChunkEntity struct {
	ID        int64     `db:"id"`
	DocID     int64     `db:"doc_id"`
	Seq       int       `db:"seq"`
	Text      string    `db:"text"`
	Embedded  bool      `db:"embedded"`
	CreatedAt time.Time `db:"created_at"`
}

func (e *kbChunkEntity) toDomain() *domain.KBChunk {
	return &domain.KBChunk{
		ID:        e.ID,
		DocID:     e.DocID,
		Seq:       e.Seq,
		Text:      e.Text,
		Embedded:  e.Embedded,
		CreatedAt: e.CreatedAt,
	}
}

// ReplaceForDoc swaps the chunk set of a document in one transaction
// so retrieval never sees a half-chunked document.
func (a *KBChunkAdapter) ReplaceForDoc(ctx context.Context, docID int64, chunks []*domain.KBChunk) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kb_chunks WHERE doc_id = $1`, docID); err != nil {
		return err
	}

	query := `
		INSERT INTO kb_chunks (doc_id, seq, text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	for _, chunk := range chunks {
		if err := tx.QueryRowContext(ctx, query, docID, chunk.Seq, chunk.Text).
			Scan(&chunk.ID, &chunk.CreatedAt); err != nil {
			return err
		}
		chunk.DocID = docID
	}

	return tx.Commit()
}

func (a *KBChunkAdapter) GetByID(ctx context.Context, id int64) (*domain.KBChunk, error) {
	var entity kbChunkEntity
	query := `SELECT id, doc_id, seq, text, embedded, created_at FROM kb_chunks WHERE id = $1`
	if err := a.db.GetContext(ctx, &entity, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return entity.toDomain(), nil
}

func (a *KBChunkAdapter) ListByDoc(ctx context.Context, docID int64) ([]*domain.KBChunk, error) {
	var entities []kbChunkEntity
	query := `SELECT id, doc_id, seq, text, embedded, created_at FROM kb_chunks WHERE doc_id = $1 ORDER BY seq ASC`
	if err := a.db.SelectContext(ctx, &entities, query, docID); err != nil {
		return nil, err
	}

	chunks := make([]*domain.KBChunk, len(entities))
	for i := range entities {
		chunks[i] = entities[i].toDomain()
	}
	return chunks, nil
}

func (a *KBChunkAdapter) ListUnembedded(ctx context.Context, limit int) ([]*domain.KBChunk, error) {
	var entities []kbChunkEntity
	query := `
		SELECT c.id, c.doc_id, c.seq, c.text, c.embedded, c.created_at
		FROM kb_chunks c
		JOIN kb_docs d ON d.id = c.doc_id
		WHERE c.embedded = FALSE AND d.status = 'published'
		ORDER BY c.id ASC
		LIMIT $1
	`
	if err := a.db.SelectContext(ctx, &entities, query, limit); err != nil {
		return nil, err
	}

	chunks := make([]*domain.KBChunk, len(entities))
	for i := range entities {
		chunks[i] = entities[i].toDomain()
	}
	return chunks, nil
}

func (a *KBChunkAdapter) DeleteByDoc(ctx context.Context, docID int64) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM kb_chunks WHERE doc_id = $1`, docID)
	return err
}

var _ out.KBChunkRepository = (*KBChunkAdapter)(nil)
