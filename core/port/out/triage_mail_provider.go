package out

import (
	"context"

	"triage_server/core/domain"
)

// DeltaResult is one page of provider changes since a history cursor.
type DeltaResult struct {
	Messages   []*domain.InboundMessage
	NextCursor uint64
}

// OutboundMail is a reply to be delivered through the provider.
type OutboundMail struct {
	To              string
	Subject         string
	Body            string
	ProviderThread  string
	InReplyTo       string
}

// MailProviderPort is the email collaborator boundary. Provider-native
// ids are stored verbatim for idempotency and later refresh.
type MailProviderPort interface {
	// ListDelta returns messages newer than cursor. cursor 0 requests a
	// baseline cursor without a backfill.
	ListDelta(ctx context.Context, mailbox string, cursor uint64) (*DeltaResult, error)
	FetchThread(ctx context.Context, providerThreadID string) ([]*domain.InboundMessage, error)
	FetchAttachment(ctx context.Context, providerMessageID, attachmentID string) ([]byte, error)
	Send(ctx context.Context, mailbox string, mail *OutboundMail) (providerMessageID string, err error)
}
