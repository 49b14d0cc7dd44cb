package thread

import (
	"context"
	"strings"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
)

// Normalizer converts raw inbound communications into canonical
// Message rows, deduplicated against previous ingests.
type Normalizer struct {
	threads  out.ThreadRepository
	messages out.MessageRepository
	events   out.EventRepository
	raw      out.RawMessageRepository
	machine  *StateMachine
	mailbox  string
	log      *logger.Logger
}

func NewNormalizer(
	threads out.ThreadRepository,
	messages out.MessageRepository,
	events out.EventRepository,
	raw out.RawMessageRepository,
	machine *StateMachine,
	mailbox string,
) *Normalizer {
	return &Normalizer{
		threads:  threads,
		messages: messages,
		events:   events,
		raw:      raw,
		machine:  machine,
		mailbox:  NormalizeAddress(mailbox),
		log:      logger.Default().WithField("component", "normalizer"),
	}
}

// IngestResult reports what Ingest did with one raw message.
type IngestResult struct {
	Thread    *domain.Thread
	Message   *domain.Message
	Duplicate bool
	Reopened  bool
}

// Ingest is idempotent per provider message id: a re-delivery is a
// silent no-op, never an error. Messages without an external id fall
// back to a content+timestamp fingerprint, a best-effort boundary.
func (n *Normalizer) Ingest(ctx context.Context, raw *domain.InboundMessage) (*IngestResult, error) {
	thread, created, err := n.findOrCreateThread(ctx, raw)
	if err != nil {
		return nil, err
	}

	if existing, err := n.findDuplicate(ctx, thread.ID, raw); err != nil {
		return nil, err
	} else if existing != nil {
		n.log.WithThread(thread.ID).Debug("duplicate message %s absorbed", raw.ProviderID)
		return &IngestResult{Thread: thread, Message: existing, Duplicate: true}, nil
	}

	direction := n.inferDirection(raw.Sender)
	msg := &domain.Message{
		ThreadID:    thread.ID,
		Direction:   direction,
		Role:        domain.RoleNormal,
		Channel:     raw.Channel,
		Sender:      NormalizeAddress(raw.Sender),
		Recipient:   NormalizeAddress(raw.Recipient),
		Subject:     raw.Subject,
		Body:        raw.Body,
		ProviderID:  raw.ProviderID,
		Attachments: raw.Attachments,
		SentAt:      raw.SentAt,
	}
	if msg.ProviderID == "" {
		msg.Fingerprint = domain.MessageFingerprint(msg.Sender, msg.Body, msg.SentAt)
	}

	if err := n.messages.Create(ctx, msg); err != nil {
		return nil, apperr.DatabaseError("create message", err)
	}

	// Without a raw store only the relational projection is kept.
	if n.raw != nil && (raw.HTMLBody != "" || len(raw.Headers) > 0 || len(raw.Attachments) > 0) {
		rawDoc := &domain.RawMessage{
			MessageID:   msg.ID,
			ThreadID:    thread.ID,
			ProviderID:  raw.ProviderID,
			TextBody:    raw.Body,
			HTMLBody:    raw.HTMLBody,
			Headers:     raw.Headers,
			Attachments: raw.Attachments,
			StoredAt:    time.Now().UTC(),
		}
		if err := n.raw.Save(ctx, rawDoc); err != nil {
			n.log.WithThread(thread.ID).WithError(err).Warn("failed to store raw message body")
		}
	}

	now := time.Now().UTC()
	if err := n.threads.Touch(ctx, thread.ID, now); err != nil {
		n.log.WithThread(thread.ID).WithError(err).Warn("failed to touch thread")
	}
	thread.UpdatedAt = now

	if event, err := domain.NewEvent(thread.ID, domain.EventMessageIngested, domain.MessageIngestedPayload{
		MessageID:  msg.ID,
		Direction:  direction,
		ProviderID: msg.ProviderID,
	}); err == nil {
		if err := n.events.Append(ctx, event); err != nil {
			n.log.WithThread(thread.ID).WithError(err).Error("failed to record ingest event")
		}
	}

	result := &IngestResult{Thread: thread, Message: msg}

	// A resolved thread is reopened only by an inbound message. A new
	// thread is already NEW; the self transition still audits arrival.
	if direction == domain.DirectionInbound && !created {
		wasResolved := thread.State == domain.ThreadStateResolved
		if _, err := n.machine.Apply(ctx, thread, domain.TriggerInboundMessage, "inbound message received"); err != nil {
			n.log.WithThread(thread.ID).WithError(err).Warn("inbound transition rejected")
		} else if wasResolved {
			result.Reopened = true
		}
	}

	return result, nil
}

func (n *Normalizer) findOrCreateThread(ctx context.Context, raw *domain.InboundMessage) (*domain.Thread, bool, error) {
	if raw.ProviderThread != "" {
		thread, err := n.threads.GetByProviderThread(ctx, n.mailbox, raw.ProviderThread)
		if err != nil {
			return nil, false, apperr.DatabaseError("lookup thread", err)
		}
		if thread != nil {
			return thread, false, nil
		}
	}

	sender := NormalizeAddress(raw.Sender)
	thread := &domain.Thread{
		Subject:        raw.Subject,
		State:          domain.ThreadStateNew,
		Verification:   domain.VerificationUnverified,
		CustomerEmail:  sender,
		ProviderThread: raw.ProviderThread,
		Mailbox:        n.mailbox,
	}
	if n.inferDirection(raw.Sender) == domain.DirectionOutbound {
		thread.CustomerEmail = NormalizeAddress(raw.Recipient)
	}

	if err := n.threads.Create(ctx, thread); err != nil {
		return nil, false, apperr.DatabaseError("create thread", err)
	}
	n.log.WithThread(thread.ID).Info("created thread for %s", thread.CustomerEmail)
	return thread, true, nil
}

func (n *Normalizer) findDuplicate(ctx context.Context, threadID int64, raw *domain.InboundMessage) (*domain.Message, error) {
	if raw.ProviderID != "" {
		msg, err := n.messages.GetByProviderID(ctx, threadID, raw.ProviderID)
		if err != nil {
			return nil, apperr.DatabaseError("lookup message by provider id", err)
		}
		return msg, nil
	}

	fp := domain.MessageFingerprint(NormalizeAddress(raw.Sender), raw.Body, raw.SentAt)
	msg, err := n.messages.GetByFingerprint(ctx, threadID, fp)
	if err != nil {
		return nil, apperr.DatabaseError("lookup message by fingerprint", err)
	}
	return msg, nil
}

func (n *Normalizer) inferDirection(sender string) domain.Direction {
	if NormalizeAddress(sender) == n.mailbox {
		return domain.DirectionOutbound
	}
	return domain.DirectionInbound
}

// NormalizeAddress strips display names, routing wrappers and
// plus-tags, returning the lowercased bare address.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	// "Display Name <user@host>" wrapper.
	if start := strings.LastIndex(addr, "<"); start >= 0 {
		if end := strings.Index(addr[start:], ">"); end > 0 {
			addr = addr[start+1 : start+end]
		}
	}

	addr = strings.ToLower(strings.TrimSpace(addr))

	at := strings.LastIndex(addr, "@")
	if at <= 0 {
		return addr
	}
	local, host := addr[:at], addr[at+1:]

	// Plus-tag: user+tag@host matches user@host.
	if plus := strings.Index(local, "+"); plus > 0 {
		local = local[:plus]
	}

	return local + "@" + host
}
