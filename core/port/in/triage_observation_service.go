package in

import (
	"context"

	"triage_server/core/domain"
)

// ObservationService exposes human takeover of threads.
type ObservationService interface {
	Enter(ctx context.Context, threadID int64, handler string) (*domain.Observation, error)
	Exit(ctx context.Context, threadID int64, resolution domain.ResolutionClass, summary *domain.ObservationSummary) (*domain.Observation, error)
	ListByThread(ctx context.Context, threadID int64) ([]*domain.Observation, error)
}
