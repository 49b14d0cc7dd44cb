package persistence

import (
	"context"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

type EventAdapter struct {
	db *sqlx.DB
}

func NewEventAdapter(db *sqlx.DB) *EventAdapter {
	return &EventAdapter{db: db}
}

type eventEntity struct {
	ID        int64     `db:"id"`
	ThreadID  int64     `db:"thread_id"`
	Type      string    `db:"type"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

func (e *eventEntity) toDomain() *domain.Event {
	return &domain.Event{
		ID:        e.ID,
		ThreadID:  e.ThreadID,
		Type:      domain.EventType(e.Type),
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt,
	}
}

func (a *EventAdapter) Append(ctx context.Context, event *domain.Event) error {
	query := `
		INSERT INTO events (thread_id, type, payload)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	var payload interface{}
	if len(event.Payload) > 0 {
		payload = []byte(event.Payload)
	}
	return a.db.QueryRowContext(ctx, query,
		event.ThreadID,
		string(event.Type),
		payload,
	).Scan(&event.ID, &event.CreatedAt)
}

func (a *EventAdapter) ListByThread(ctx context.Context, threadID int64, limit int) ([]*domain.Event, error) {
	var entities []eventEntity
	query := `SELECT * FROM events WHERE thread_id = $1 ORDER BY id ASC LIMIT $2`
	if err := a.db.SelectContext(ctx, &entities, query, threadID, limit); err != nil {
		return nil, err
	}
	return eventsToDomain(entities), nil
}

func (a *EventAdapter) ListByType(ctx context.Context, threadID int64, typ domain.EventType, limit int) ([]*domain.Event, error) {
	var entities []eventEntity
	query := `SELECT * FROM events WHERE thread_id = $1 AND type = $2 ORDER BY id ASC LIMIT $3`
	if err := a.db.SelectContext(ctx, &entities, query, threadID, string(typ), limit); err != nil {
		return nil, err
	}
	return eventsToDomain(entities), nil
}

func (a *EventAdapter) PurgeByThread(ctx context.Context, threadID int64) (int64, error) {
	result, err := a.db.ExecContext(ctx, `DELETE FROM events WHERE thread_id = $1`, threadID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func eventsToDomain(entities []eventEntity) []*domain.Event {
	events := make([]*domain.Event, len(entities))
	for i := range entities {
		events[i] = entities[i].toDomain()
	}
	return events
}

var _ out.EventRepository = (*EventAdapter)(nil)
