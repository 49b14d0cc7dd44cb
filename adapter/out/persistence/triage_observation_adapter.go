package persistence

import (
	"context"
	"database/sql"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

type ObservationAdapter struct {
	db *sqlx.DB
}

func NewObservationAdapter(db *sqlx.DB) *ObservationAdapter {
	return &ObservationAdapter{db: db}
}

type observationEntity struct {
	ID                int64          `db:"id"`
	ThreadID          int64          `db:"thread_id"`
	Handler           string         `db:"handler"`
	InterventionStart time.Time      `db:"intervention_start"`
	InterventionEnd   sql.NullTime   `db:"intervention_end"`
	Resolution        sql.NullString `db:"resolution"`
	Summary           []byte         `db:"summary"`
	CreatedAt         time.Time      `db:"created_at"`
}

func (e *observationEntity) toDomain() (*domain.Observation, error) {
	o := &domain.Observation{
		ID:                e.ID,
		ThreadID:          e.ThreadID,
		Handler:           e.Handler,
		InterventionStart: e.InterventionStart,
		CreatedAt:         e.CreatedAt,
	}
	if e.InterventionEnd.Valid {
		o.InterventionEnd = &e.InterventionEnd.Time
	}
	if e.Resolution.Valid {
		resolution := domain.ResolutionClass(e.Resolution.String)
		o.Resolution = &resolution
	}
	if err := fromJSON(e.Summary, &o.Summary); err != nil {
		return nil, err
	}
	return o, nil
}

func (a *ObservationAdapter) Create(ctx context.Context, obs *domain.Observation) error {
	query := `
		INSERT INTO observations (thread_id, handler, intervention_start)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	return a.db.QueryRowContext(ctx, query,
		obs.ThreadID,
		obs.Handler,
		obs.InterventionStart,
	).Scan(&obs.ID, &obs.CreatedAt)
}

func (a *ObservationAdapter) GetByID(ctx context.Context, id int64) (*domain.Observation, error) {
	return a.getOne(ctx, `SELECT * FROM observations WHERE id = $1`, id)
}

func (a *ObservationAdapter) GetOpenByThread(ctx context.Context, threadID int64) (*domain.Observation, error) {
	query := `SELECT * FROM observations WHERE thread_id = $1 AND intervention_end IS NULL`
	return a.getOne(ctx, query, threadID)
}

func (a *ObservationAdapter) ListByThread(ctx context.Context, threadID int64) ([]*domain.Observation, error) {
	var entities []observationEntity
	query := `SELECT * FROM observations WHERE thread_id = $1 ORDER BY intervention_start DESC`
	if err := a.db.SelectContext(ctx, &entities, query, threadID); err != nil {
		return nil, err
	}
	return observationsToDomain(entities)
}

func (a *ObservationAdapter) Close(ctx context.Context, id int64, end time.Time, resolution domain.ResolutionClass, summary *domain.ObservationSummary) error {
	summaryJSON, err := toJSON(summary)
	if err != nil {
		return err
	}
	query := `
		UPDATE observations SET
			intervention_end = $1,
			resolution = $2,
			summary = $3
		WHERE id = $4 AND intervention_end IS NULL
	`
	_, err = a.db.ExecContext(ctx, query, end, string(resolution), summaryJSON, id)
	return err
}

func (a *ObservationAdapter) ListClosedSince(ctx context.Context, since time.Time, limit int) ([]*domain.Observation, error) {
	var entities []observationEntity
	query := `
		SELECT * FROM observations
		WHERE intervention_end IS NOT NULL AND intervention_end >= $1
		ORDER BY intervention_end ASC
		LIMIT $2
	`
	if err := a.db.SelectContext(ctx, &entities, query, since, limit); err != nil {
		return nil, err
	}
	return observationsToDomain(entities)
}

func (a *ObservationAdapter) getOne(ctx context.Context, query string, args ...interface{}) (*domain.Observation, error) {
	var entity observationEntity
	if err := a.db.GetContext(ctx, &entity, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return entity.toDomain()
}

func observationsToDomain(entities []observationEntity) ([]*domain.Observation, error) {
	observations := make([]*domain.Observation, len(entities))
	for i := range entities {
		o, err := entities[i].toDomain()
		if err != nil {
			return nil, err
		}
		observations[i] = o
	}
	return observations, nil
}

var _ out.ObservationRepository = (*ObservationAdapter)(nil)
