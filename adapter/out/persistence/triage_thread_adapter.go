package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

type ThreadAdapter struct {
	db *sqlx.DB
}

func NewThreadAdapter(db *sqlx.DB) *ThreadAdapter {
	return &ThreadAdapter{db: db}
}

type threadEntity struct {
	ID              int64          `db:"id"`
	Subject         string         `db:"subject"`
	State           string         `db:"state"`
	LastIntent      sql.NullString `db:"last_intent"`
	Verification    string         `db:"verification"`
	CustomerEmail   string         `db:"customer_email"`
	CustomerID      sql.NullString `db:"customer_id"`
	OrderNumber     sql.NullString `db:"order_number"`
	VendorRequestID sql.NullInt64  `db:"vendor_request_id"`
	ProviderThread  sql.NullString `db:"provider_thread_id"`
	Mailbox         string         `db:"mailbox"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
	ResolvedAt      sql.NullTime   `db:"resolved_at"`
}

func (e *threadEntity) toDomain() *domain.Thread {
	t := &domain.Thread{
		ID:            e.ID,
		Subject:       e.Subject,
		State:         domain.ThreadState(e.State),
		Verification:  domain.VerificationStatus(e.Verification),
		CustomerEmail: e.CustomerEmail,
		Mailbox:       e.Mailbox,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	if e.LastIntent.Valid {
		intent := domain.Intent(e.LastIntent.String)
		t.LastIntent = &intent
	}
	if e.CustomerID.Valid {
		t.CustomerID = &e.CustomerID.String
	}
	if e.OrderNumber.Valid {
		t.OrderNumber = &e.OrderNumber.String
	}
	if e.VendorRequestID.Valid {
		t.VendorRequestID = &e.VendorRequestID.Int64
	}
	if e.ProviderThread.Valid {
		t.ProviderThread = e.ProviderThread.String
	}
	if e.ResolvedAt.Valid {
		t.ResolvedAt = &e.ResolvedAt.Time
	}
	return t
}

func (a *ThreadAdapter) Create(ctx context.Context, thread *domain.Thread) error {
	query := `
		INSERT INTO threads (
			subject, state, verification, customer_email,
			provider_thread_id, mailbox
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	return a.db.QueryRowContext(ctx, query,
		thread.Subject,
		string(thread.State),
		string(thread.Verification),
		thread.CustomerEmail,
		toNullableString(thread.ProviderThread),
		thread.Mailbox,
	).Scan(&thread.ID, &thread.CreatedAt, &thread.UpdatedAt)
}

func (a *ThreadAdapter) GetByID(ctx context.Context, id int64) (*domain.Thread, error) {
	var entity threadEntity
	query := `SELECT * FROM threads WHERE id = $1`
	if err := a.db.GetContext(ctx, &entity, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return entity.toDomain(), nil
}

func (a *ThreadAdapter) GetByProviderThread(ctx context.Context, mailbox, providerThreadID string) (*domain.Thread, error) {
	var entity threadEntity
	query := `SELECT * FROM threads WHERE mailbox = $1 AND provider_thread_id = $2`
	if err := a.db.GetContext(ctx, &entity, query, mailbox, providerThreadID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return entity.toDomain(), nil
}

func (a *ThreadAdapter) GetByCustomerEmail(ctx context.Context, email string, limit int) ([]*domain.Thread, error) {
	var entities []threadEntity
	query := `SELECT * FROM threads WHERE customer_email = $1 ORDER BY updated_at DESC LIMIT $2`
	if err := a.db.SelectContext(ctx, &entities, query, email, limit); err != nil {
		return nil, err
	}
	return threadsToDomain(entities), nil
}

func (a *ThreadAdapter) List(ctx context.Context, filter *domain.ThreadFilter) ([]*domain.Thread, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	n := 0

	arg := func(v interface{}) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if filter.State != nil {
		where += " AND state = " + arg(string(*filter.State))
	}
	if filter.Intent != nil {
		where += " AND last_intent = " + arg(string(*filter.Intent))
	}
	if filter.CustomerEmail != nil {
		where += " AND customer_email = " + arg(*filter.CustomerEmail)
	}
	if filter.OrderNumber != nil {
		where += " AND order_number = " + arg(*filter.OrderNumber)
	}
	if filter.UpdatedAfter != nil {
		where += " AND updated_at > " + arg(*filter.UpdatedAfter)
	}

	var total int
	if err := a.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM threads"+where, args...); err != nil {
		return nil, 0, err
	}

	query := "SELECT * FROM threads" + where +
		" ORDER BY updated_at DESC LIMIT " + arg(filter.Limit) + " OFFSET " + arg(filter.Offset)

	var entities []threadEntity
	if err := a.db.SelectContext(ctx, &entities, query, args...); err != nil {
		return nil, 0, err
	}
	return threadsToDomain(entities), total, nil
}

func (a *ThreadAdapter) UpdateState(ctx context.Context, id int64, expected, next domain.ThreadState) (bool, error) {
	query := `
		UPDATE threads SET state = $1, updated_at = NOW()
		WHERE id = $2 AND state = $3
	`
	result, err := a.db.ExecContext(ctx, query, string(next), id, string(expected))
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (a *ThreadAdapter) UpdateIntent(ctx context.Context, id int64, intent domain.Intent) error {
	query := `UPDATE threads SET last_intent = $1, updated_at = NOW() WHERE id = $2`
	_, err := a.db.ExecContext(ctx, query, string(intent), id)
	return err
}

func (a *ThreadAdapter) UpdateVerification(ctx context.Context, id int64, status domain.VerificationStatus, customerID, orderNumber *string) error {
	query := `
		UPDATE threads SET
			verification = $1,
			customer_id = COALESCE($2, customer_id),
			order_number = COALESCE($3, order_number),
			updated_at = NOW()
		WHERE id = $4
	`
	_, err := a.db.ExecContext(ctx, query, string(status), customerID, orderNumber, id)
	return err
}

func (a *ThreadAdapter) Touch(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE threads SET updated_at = $1 WHERE id = $2`
	_, err := a.db.ExecContext(ctx, query, at, id)
	return err
}

func (a *ThreadAdapter) SetResolved(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE threads SET resolved_at = $1, updated_at = $1 WHERE id = $2`
	_, err := a.db.ExecContext(ctx, query, at, id)
	return err
}

func (a *ThreadAdapter) ListClosedSince(ctx context.Context, since time.Time, limit int) ([]*domain.Thread, error) {
	var entities []threadEntity
	query := `
		SELECT * FROM threads
		WHERE state = 'RESOLVED' AND resolved_at >= $1
		ORDER BY resolved_at ASC
		LIMIT $2
	`
	if err := a.db.SelectContext(ctx, &entities, query, since, limit); err != nil {
		return nil, err
	}
	return threadsToDomain(entities), nil
}

func threadsToDomain(entities []threadEntity) []*domain.Thread {
	threads := make([]*domain.Thread, len(entities))
	for i := range entities {
		threads[i] = entities[i].toDomain()
	}
	return threads
}

var _ out.ThreadRepository = (*ThreadAdapter)(nil)
