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

// SettingsAdapter stores the single pipeline settings row. The version
// handed to callers is the row's updated_at in unix nanoseconds, which
// makes it monotonic without a separate counter.
type SettingsAdapter struct {
	db *sqlx.DB
}

func NewSettingsAdapter(db *sqlx.DB) *SettingsAdapter {
	return &SettingsAdapter{db: db}
}

type settingsEntity struct {
	ID                  int64          `db:"id"`
	AutosendEnabled     bool           `db:"autosend_enabled"`
	ConfidenceThreshold float64        `db:"confidence_threshold"`
	RequireVerification bool           `db:"require_verification"`
	RetrievalTopN       int            `db:"retrieval_top_n"`
	MinSimilarity       float64        `db:"min_similarity"`
	HistoryWindow       int            `db:"history_window"`
	ForbiddenPhrases    pq.StringArray `db:"forbidden_phrases"`
	RequiredDisclosures []byte         `db:"required_disclosures"`
	UpdatedAt           time.Time      `db:"updated_at"`
	UpdatedBy           sql.NullString `db:"updated_by"`
}

func (e *settingsEntity) toDomain() (*domain.PipelineSettings, error) {
	s := &domain.PipelineSettings{
		Version:             e.UpdatedAt.UnixNano(),
		AutosendEnabled:     e.AutosendEnabled,
		ConfidenceThreshold: e.ConfidenceThreshold,
		RequireVerification: e.RequireVerification,
		RetrievalTopN:       e.RetrievalTopN,
		MinSimilarity:       e.MinSimilarity,
		HistoryWindow:       e.HistoryWindow,
		ForbiddenPhrases:    e.ForbiddenPhrases,
		UpdatedAt:           e.UpdatedAt,
	}
	if e.UpdatedBy.Valid {
		s.UpdatedBy = e.UpdatedBy.String
	}
	if err := fromJSON(e.RequiredDisclosures, &s.RequiredDisclosures); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *SettingsAdapter) Load(ctx context.Context) (*domain.PipelineSettings, error) {
	var entity settingsEntity
	query := `SELECT * FROM pipeline_settings ORDER BY id LIMIT 1`
	if err := a.db.GetContext(ctx, &entity, query); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return entity.toDomain()
}

func (a *SettingsAdapter) Save(ctx context.Context, settings *domain.PipelineSettings, updatedBy string) error {
	disclosures, err := toJSON(settings.RequiredDisclosures)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pipeline_settings (
			id, autosend_enabled, confidence_threshold, require_verification,
			retrieval_top_n, min_similarity, history_window,
			forbidden_phrases, required_disclosures, updated_by, updated_at
		)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			autosend_enabled = EXCLUDED.autosend_enabled,
			confidence_threshold = EXCLUDED.confidence_threshold,
			require_verification = EXCLUDED.require_verification,
			retrieval_top_n = EXCLUDED.retrieval_top_n,
			min_similarity = EXCLUDED.min_similarity,
			history_window = EXCLUDED.history_window,
			forbidden_phrases = EXCLUDED.forbidden_phrases,
			required_disclosures = EXCLUDED.required_disclosures,
			updated_by = EXCLUDED.updated_by,
			updated_at = NOW()
	`
	_, err = a.db.ExecContext(ctx, query,
		settings.AutosendEnabled,
		settings.ConfidenceThreshold,
		settings.RequireVerification,
		settings.RetrievalTopN,
		settings.MinSimilarity,
		settings.HistoryWindow,
		pq.Array(settings.ForbiddenPhrases),
		disclosures,
		toNullableString(updatedBy),
	)
	return err
}

var _ out.SettingsRepository = (*SettingsAdapter)(nil)

type SyncStateAdapter struct {
	db *sqlx.DB
}

func NewSyncStateAdapter(db *sqlx.DB) *SyncStateAdapter {
	return &SyncStateAdapter{db: db}
}

type syncStateEntity struct {
	ID            int64          `db:"id"`
	Mailbox       string         `db:"mailbox"`
	HistoryCursor int64          `db:"history_cursor"`
	LastPolledAt  sql.NullTime   `db:"last_polled_at"`
	LastError     sql.NullString `db:"last_error"`
	FailureCount  int            `db:"failure_count"`
	Suspended     bool           `db:"suspended"`
	SuspendedAt   sql.NullTime   `db:"suspended_at"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (e *syncStateEntity) toDomain() *domain.MailboxSyncState {
	s := &domain.MailboxSyncState{
		ID:            e.ID,
		Mailbox:       e.Mailbox,
		HistoryCursor: uint64(e.HistoryCursor),
		FailureCount:  e.FailureCount,
		Suspended:     e.Suspended,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	if e.LastPolledAt.Valid {
		s.LastPolledAt = &e.LastPolledAt.Time
	}
	if e.LastError.Valid {
		s.LastError = &e.LastError.String
	}
	if e.SuspendedAt.Valid {
		s.SuspendedAt = &e.SuspendedAt.Time
	}
	return s
}

func (a *SyncStateAdapter) GetOrCreate(ctx context.Context, mailbox string) (*domain.MailboxSyncState, error) {
	query := `
		INSERT INTO mailbox_sync_states (mailbox)
		VALUES ($1)
		ON CONFLICT (mailbox) DO UPDATE SET mailbox = EXCLUDED.mailbox
		RETURNING *
	`
	var entity syncStateEntity
	if err := a.db.GetContext(ctx, &entity, query, mailbox); err != nil {
		return nil, err
	}
	return entity.toDomain(), nil
}

func (a *SyncStateAdapter) AdvanceCursor(ctx context.Context, mailbox string, cursor uint64, polledAt time.Time) error {
	query := `
		UPDATE mailbox_sync_states SET
			history_cursor = $1,
			last_polled_at = $2,
			updated_at = NOW()
		WHERE mailbox = $3 AND history_cursor < $1
	`
	_, err := a.db.ExecContext(ctx, query, int64(cursor), polledAt, mailbox)
	return err
}

func (a *SyncStateAdapter) RecordFailure(ctx context.Context, mailbox string, errMsg string, suspendAt int) (*domain.MailboxSyncState, error) {
	query := `
		UPDATE mailbox_sync_states SET
			failure_count = failure_count + 1,
			last_error = $1,
			suspended = (failure_count + 1 >= $2),
			suspended_at = CASE WHEN failure_count + 1 >= $2 AND suspended_at IS NULL
				THEN NOW() ELSE suspended_at END,
			updated_at = NOW()
		WHERE mailbox = $3
		RETURNING *
	`
	var entity syncStateEntity
	if err := a.db.GetContext(ctx, &entity, query, errMsg, suspendAt, mailbox); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return entity.toDomain(), nil
}

func (a *SyncStateAdapter) RecordSuccess(ctx context.Context, mailbox string) error {
	query := `
		UPDATE mailbox_sync_states SET
			failure_count = 0,
			last_error = NULL,
			last_polled_at = NOW(),
			updated_at = NOW()
		WHERE mailbox = $1 AND suspended = FALSE
	`
	_, err := a.db.ExecContext(ctx, query, mailbox)
	return err
}

func (a *SyncStateAdapter) Reset(ctx context.Context, mailbox string) error {
	query := `
		UPDATE mailbox_sync_states SET
			failure_count = 0,
			last_error = NULL,
			suspended = FALSE,
			suspended_at = NULL,
			updated_at = NOW()
		WHERE mailbox = $1
	`
	_, err := a.db.ExecContext(ctx, query, mailbox)
	return err
}

func (a *SyncStateAdapter) List(ctx context.Context) ([]*domain.MailboxSyncState, error) {
	var entities []syncStateEntity
	query := `SELECT * FROM mailbox_sync_states ORDER BY mailbox ASC`
	if err := a.db.SelectContext(ctx, &entities, query); err != nil {
		return nil, err
	}

	states := make([]*domain.MailboxSyncState, len(entities))
	for i := range entities {
		states[i] = entities[i].toDomain()
	}
	return states, nil
}

var _ out.SyncStateRepository = (*SyncStateAdapter)(nil)
