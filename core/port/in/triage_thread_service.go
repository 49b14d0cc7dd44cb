// Package in defines inbound ports (driving ports): the operations the
// HTTP layer invokes on the application core.
package in

import (
	"context"

	"triage_server/core/domain"
)

// ThreadDetail is a thread with its conversation and audit trail.
type ThreadDetail struct {
	Thread   *domain.Thread    `json:"thread"`
	Messages []*domain.Message `json:"messages"`
	Events   []*domain.Event   `json:"events"`
}

// DecodedEvent pairs an event with its decoded payload for the
// explainability view.
type DecodedEvent struct {
	Event   *domain.Event `json:"event"`
	Decoded any           `json:"decoded,omitempty"`
}

// ThreadService exposes thread inspection and manual lifecycle actions.
type ThreadService interface {
	List(ctx context.Context, filter *domain.ThreadFilter) ([]*domain.Thread, int, error)
	Get(ctx context.Context, id int64) (*ThreadDetail, error)
	// Events returns the audit trail with payloads decoded where the
	// event kind is known.
	Events(ctx context.Context, threadID int64, limit int) ([]*DecodedEvent, error)
	Escalate(ctx context.Context, threadID int64, reason string) (*domain.Thread, error)
	Resolve(ctx context.Context, threadID int64, reason string) (*domain.Thread, error)
	// PurgeEvents is the administrative bulk delete of a thread's audit
	// trail.
	PurgeEvents(ctx context.Context, threadID int64) (int64, error)
}
