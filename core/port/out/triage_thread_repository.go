// Package out defines outbound ports (driven ports) for the application.
// These interfaces represent dependencies that the application needs.
package out

import (
	"context"
	"time"

	"triage_server/core/domain"
)

// ThreadRepository persists support threads.
type ThreadRepository interface {
	Create(ctx context.Context, thread *domain.Thread) error
	GetByID(ctx context.Context, id int64) (*domain.Thread, error)
	GetByProviderThread(ctx context.Context, mailbox, providerThreadID string) (*domain.Thread, error)
	GetByCustomerEmail(ctx context.Context, email string, limit int) ([]*domain.Thread, error)
	List(ctx context.Context, filter *domain.ThreadFilter) ([]*domain.Thread, int, error)
	// UpdateState applies the new state only when the stored state still
	// equals expected, returning false on a lost race.
	UpdateState(ctx context.Context, id int64, expected, next domain.ThreadState) (bool, error)
	UpdateIntent(ctx context.Context, id int64, intent domain.Intent) error
	UpdateVerification(ctx context.Context, id int64, status domain.VerificationStatus, customerID, orderNumber *string) error
	Touch(ctx context.Context, id int64, at time.Time) error
	SetResolved(ctx context.Context, id int64, at time.Time) error
	// ListClosedSince returns resolved threads for the learning miner.
	ListClosedSince(ctx context.Context, since time.Time, limit int) ([]*domain.Thread, error)
}

// MessageRepository persists thread messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id int64) (*domain.Message, error)
	GetByProviderID(ctx context.Context, threadID int64, providerID string) (*domain.Message, error)
	GetByFingerprint(ctx context.Context, threadID int64, fingerprint string) (*domain.Message, error)
	ListByThread(ctx context.Context, threadID int64, limit int) ([]*domain.Message, error)
	// LatestInbound returns the newest inbound message on a thread.
	LatestInbound(ctx context.Context, threadID int64) (*domain.Message, error)
}

// EventRepository persists the append-only audit trail.
type EventRepository interface {
	Append(ctx context.Context, event *domain.Event) error
	ListByThread(ctx context.Context, threadID int64, limit int) ([]*domain.Event, error)
	ListByType(ctx context.Context, threadID int64, typ domain.EventType, limit int) ([]*domain.Event, error)
	// PurgeByThread is the only delete path, administrative and bulk.
	PurgeByThread(ctx context.Context, threadID int64) (int64, error)
}
