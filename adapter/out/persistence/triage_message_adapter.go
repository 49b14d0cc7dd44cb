package persistence

import (
	"context"
	"database/sql"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

type MessageAdapter struct {
	db *sqlx.DB
}

func NewMessageAdapter(db *sqlx.DB) *MessageAdapter {
	return &MessageAdapter{db: db}
}

type messageEntity struct {
	ID          int64          `db:"id"`
	ThreadID    int64          `db:"thread_id"`
	Direction   string         `db:"direction"`
	Role        string         `db:"role"`
	Channel     string         `db:"channel"`
	Sender      string         `db:"sender"`
	Recipient   string         `db:"recipient"`
	Subject     string         `db:"subject"`
	Body        string         `db:"body"`
	ProviderID  sql.NullString `db:"provider_id"`
	Fingerprint sql.NullString `db:"fingerprint"`
	Attachments []byte         `db:"attachments"`
	Meta        []byte         `db:"meta"`
	SentAt      time.Time      `db:"sent_at"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (e *messageEntity) toDomain() (*domain.Message, error) {
	m := &domain.Message{
		ID:        e.ID,
		ThreadID:  e.ThreadID,
		Direction: domain.Direction(e.Direction),
		Role:      domain.MessageRole(e.Role),
		Channel:   domain.Channel(e.Channel),
		Sender:    e.Sender,
		Recipient: e.Recipient,
		Subject:   e.Subject,
		Body:      e.Body,
		SentAt:    e.SentAt,
		CreatedAt: e.CreatedAt,
	}
	if e.ProviderID.Valid {
		m.ProviderID = e.ProviderID.String
	}
	if e.Fingerprint.Valid {
		m.Fingerprint = e.Fingerprint.String
	}
	if err := fromJSON(e.Attachments, &m.Attachments); err != nil {
		return nil, err
	}
	if err := fromJSON(e.Meta, &m.Meta); err != nil {
		return nil, err
	}
	return m, nil
}

func (a *MessageAdapter) Create(ctx context.Context, msg *domain.Message) error {
	attachments, err := toJSON(msg.Attachments)
	if err != nil {
		return err
	}
	meta, err := toJSON(msg.Meta)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO messages (
			thread_id, direction, role, channel, sender, recipient,
			subject, body, provider_id, fingerprint, attachments, meta, sent_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at
	`
	return a.db.QueryRowContext(ctx, query,
		msg.ThreadID,
		string(msg.Direction),
		string(msg.Role),
		string(msg.Channel),
		msg.Sender,
		msg.Recipient,
		msg.Subject,
		msg.Body,
		toNullableString(msg.ProviderID),
		toNullableString(msg.Fingerprint),
		attachments,
		meta,
		msg.SentAt,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (a *MessageAdapter) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	return a.getOne(ctx, `SELECT * FROM messages WHERE id = $1`, id)
}

func (a *MessageAdapter) GetByProviderID(ctx context.Context, threadID int64, providerID string) (*domain.Message, error) {
	return a.getOne(ctx, `SELECT * FROM messages WHERE thread_id = $1 AND provider_id = $2`, threadID, providerID)
}

func (a *MessageAdapter) GetByFingerprint(ctx context.Context, threadID int64, fingerprint string) (*domain.Message, error) {
	return a.getOne(ctx, `SELECT * FROM messages WHERE thread_id = $1 AND fingerprint = $2`, threadID, fingerprint)
}

func (a *MessageAdapter) ListByThread(ctx context.Context, threadID int64, limit int) ([]*domain.Message, error) {
	var entities []messageEntity
	query := `
		SELECT * FROM (
			SELECT * FROM messages WHERE thread_id = $1 ORDER BY sent_at DESC LIMIT $2
		) recent ORDER BY sent_at ASC
	`
	if err := a.db.SelectContext(ctx, &entities, query, threadID, limit); err != nil {
		return nil, err
	}

	messages := make([]*domain.Message, len(entities))
	for i := range entities {
		m, err := entities[i].toDomain()
		if err != nil {
			return nil, err
		}
		messages[i] = m
	}
	return messages, nil
}

func (a *MessageAdapter) LatestInbound(ctx context.Context, threadID int64) (*domain.Message, error) {
	query := `
		SELECT * FROM messages
		WHERE thread_id = $1 AND direction = 'inbound'
		ORDER BY sent_at DESC
		LIMIT 1
	`
	return a.getOne(ctx, query, threadID)
}

func (a *MessageAdapter) getOne(ctx context.Context, query string, args ...interface{}) (*domain.Message, error) {
	var entity messageEntity
	if err := a.db.GetContext(ctx, &entity, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return entity.toDomain()
}

var _ out.MessageRepository = (*MessageAdapter)(nil)
