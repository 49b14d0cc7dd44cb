package out

import (
	"context"
	"time"

	"triage_server/core/domain"
)

// ObservationRepository persists human takeover records.
type ObservationRepository interface {
	Create(ctx context.Context, obs *domain.Observation) error
	GetByID(ctx context.Context, id int64) (*domain.Observation, error)
	// GetOpenByThread returns the open observation or nil.
	GetOpenByThread(ctx context.Context, threadID int64) (*domain.Observation, error)
	ListByThread(ctx context.Context, threadID int64) ([]*domain.Observation, error)
	Close(ctx context.Context, id int64, end time.Time, resolution domain.ResolutionClass, summary *domain.ObservationSummary) error
	// ListClosedSince feeds the learning miner.
	ListClosedSince(ctx context.Context, since time.Time, limit int) ([]*domain.Observation, error)
}
