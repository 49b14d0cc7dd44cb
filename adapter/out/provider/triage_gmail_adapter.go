// Package provider implements outbound collaborator adapters.
package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// gmailMetadataHeaders are the headers requested alongside message
// bodies. The extra ones feed the normalizer's auto-reply detection.
var gmailMetadataHeaders = []string{
	"From", "To", "Cc", "Subject", "Date",
	"Message-ID", "In-Reply-To", "References", "Content-Type",
	"List-Unsubscribe",
	"Precedence",
	"Auto-Submitted",
	"X-Auto-Response-Suppress",
}

// GmailConfig holds Gmail adapter configuration. The adapter uses a
// service account with domain-wide delegation and impersonates each
// mailbox it polls or sends from.
type GmailConfig struct {
	CredentialsJSON []byte
	DefaultMailbox  string
	PageSize        int64
}

// GmailAdapter implements out.MailProviderPort for Gmail. History ids
// serve as the polling cursor; provider message and thread ids are
// passed through verbatim.
type GmailAdapter struct {
	cfg *GmailConfig
	cb  *gobreaker.CircuitBreaker

	mu       sync.Mutex
	services map[string]*gmail.Service
}

func NewGmailAdapter(cfg *GmailConfig) *GmailAdapter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}

	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker %s: %s -> %s", name, from.String(), to.String())
		},
	}

	return &GmailAdapter{
		cfg:      cfg,
		cb:       gobreaker.NewCircuitBreaker(cbSettings),
		services: make(map[string]*gmail.Service),
	}
}

// ListDelta returns messages added since cursor. A zero cursor asks
// for a fresh baseline without backfilling history; an expired cursor
// degrades to the same baseline behavior so polling self-heals.
func (a *GmailAdapter) ListDelta(ctx context.Context, mailbox string, cursor uint64) (*out.DeltaResult, error) {
	svc, err := a.serviceFor(ctx, mailbox)
	if err != nil {
		return nil, err
	}

	if cursor == 0 {
		return a.baseline(ctx, svc, mailbox)
	}

	var resp *gmail.ListHistoryResponse
	cbErr := a.executeWithCircuitBreaker("ListDelta", func() error {
		var apiErr error
		resp, apiErr = svc.Users.History.List("me").
			StartHistoryId(cursor).
			HistoryTypes("messageAdded").
			MaxResults(a.cfg.PageSize).
			Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		if apiErr, ok := cbErr.(*googleapi.Error); ok && apiErr.Code == 404 {
			// History expired. Re-baseline rather than failing the poll.
			logger.Warn("gmail history cursor expired for %s, re-baselining", mailbox)
			return a.baseline(ctx, svc, mailbox)
		}
		return nil, a.wrapError(cbErr, "failed to list history")
	}

	seen := make(map[string]bool)
	var refs []*gmail.Message
	for _, history := range resp.History {
		for _, added := range history.MessagesAdded {
			if !seen[added.Message.Id] {
				seen[added.Message.Id] = true
				refs = append(refs, added.Message)
			}
		}
	}

	messages := make([]*domain.InboundMessage, 0, len(refs))
	for _, ref := range refs {
		full, err := svc.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			// Individual fetch failures are skipped; the message stays
			// in history until the cursor moves past it.
			logger.Warn("failed to fetch gmail message %s: %v", ref.Id, err)
			continue
		}
		messages = append(messages, a.toInbound(full))
	}

	nextCursor := cursor
	if resp.HistoryId > 0 {
		nextCursor = resp.HistoryId
	}

	return &out.DeltaResult{Messages: messages, NextCursor: nextCursor}, nil
}

func (a *GmailAdapter) baseline(ctx context.Context, svc *gmail.Service, mailbox string) (*out.DeltaResult, error) {
	var profile *gmail.Profile
	cbErr := a.executeWithCircuitBreaker("GetProfile", func() error {
		var apiErr error
		profile, apiErr = svc.Users.GetProfile("me").Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to get profile for "+mailbox)
	}
	return &out.DeltaResult{NextCursor: profile.HistoryId}, nil
}

func (a *GmailAdapter) FetchThread(ctx context.Context, providerThreadID string) ([]*domain.InboundMessage, error) {
	svc, err := a.serviceFor(ctx, a.cfg.DefaultMailbox)
	if err != nil {
		return nil, err
	}

	var thread *gmail.Thread
	cbErr := a.executeWithCircuitBreaker("FetchThread", func() error {
		var apiErr error
		thread, apiErr = svc.Users.Threads.Get("me", providerThreadID).Format("full").Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to fetch thread")
	}

	messages := make([]*domain.InboundMessage, 0, len(thread.Messages))
	for _, msg := range thread.Messages {
		messages = append(messages, a.toInbound(msg))
	}
	return messages, nil
}

func (a *GmailAdapter) FetchAttachment(ctx context.Context, providerMessageID, attachmentID string) ([]byte, error) {
	svc, err := a.serviceFor(ctx, a.cfg.DefaultMailbox)
	if err != nil {
		return nil, err
	}

	var att *gmail.MessagePartBody
	cbErr := a.executeWithCircuitBreaker("FetchAttachment", func() error {
		var apiErr error
		att, apiErr = svc.Users.Messages.Attachments.Get("me", providerMessageID, attachmentID).Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to fetch attachment")
	}

	data, err := base64.URLEncoding.DecodeString(att.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment: %w", err)
	}
	return data, nil
}

func (a *GmailAdapter) Send(ctx context.Context, mailbox string, outbound *out.OutboundMail) (string, error) {
	svc, err := a.serviceFor(ctx, mailbox)
	if err != nil {
		return "", err
	}

	raw := buildRawMessage(outbound)
	gmailMsg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString([]byte(raw)),
		ThreadId: outbound.ProviderThread,
	}

	var sent *gmail.Message
	cbErr := a.executeWithCircuitBreaker("Send", func() error {
		var apiErr error
		sent, apiErr = svc.Users.Messages.Send("me", gmailMsg).Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return "", a.wrapError(cbErr, "failed to send message")
	}
	return sent.Id, nil
}

func (a *GmailAdapter) serviceFor(ctx context.Context, mailbox string) (*gmail.Service, error) {
	a.mu.Lock()
	if svc, ok := a.services[mailbox]; ok {
		a.mu.Unlock()
		return svc, nil
	}
	a.mu.Unlock()

	jwtCfg, err := google.JWTConfigFromJSON(a.cfg.CredentialsJSON,
		gmail.GmailReadonlyScope, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gmail credentials: %w", err)
	}
	jwtCfg.Subject = mailbox

	svc, err := gmail.NewService(ctx, option.WithTokenSource(jwtCfg.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service for %s: %w", mailbox, err)
	}

	a.mu.Lock()
	a.services[mailbox] = svc
	a.mu.Unlock()
	return svc, nil
}

// executeWithCircuitBreaker wraps an API call so sustained server-side
// failures fail fast instead of piling up poll workers.
func (a *GmailAdapter) executeWithCircuitBreaker(operation string, fn func() error) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok {
				switch apiErr.Code {
				case 500, 502, 503, 429:
					return nil, err
				case 400, 401, 403, 404:
					// Client errors must not trip the breaker.
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	if nce, ok := err.(*nonCircuitError); ok {
		return nce.err
	}
	if err != nil {
		logger.Warn("gmail %s: breaker state %s: %v", operation, a.cb.State().String(), err)
	}
	return err
}

type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

func (a *GmailAdapter) toInbound(msg *gmail.Message) *domain.InboundMessage {
	headers := make(map[string]string)
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			for _, want := range gmailMetadataHeaders {
				if strings.EqualFold(h.Name, want) {
					headers[want] = h.Value
					break
				}
			}
		}
	}

	inbound := &domain.InboundMessage{
		ProviderID:     msg.Id,
		ProviderThread: msg.ThreadId,
		Channel:        domain.ChannelEmail,
		Sender:         parseAddress(headers["From"]),
		Recipient:      parseAddress(headers["To"]),
		Subject:        headers["Subject"],
		Headers:        headers,
		SentAt:         time.UnixMilli(msg.InternalDate),
	}

	var text, html string
	extractBody(msg.Payload, &text, &html)
	inbound.Body = text
	inbound.HTMLBody = html
	inbound.Attachments = extractAttachments(msg.Payload)
	return inbound
}

func extractBody(part *gmail.MessagePart, text, html *string) {
	if part == nil {
		return
	}

	if part.Body != nil && part.Body.Data != "" {
		if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
			switch part.MimeType {
			case "text/plain":
				*text = string(data)
			case "text/html":
				*html = string(data)
			}
		}
	}

	for _, p := range part.Parts {
		extractBody(p, text, html)
	}
}

func extractAttachments(part *gmail.MessagePart) []*domain.AttachmentRef {
	if part == nil {
		return nil
	}

	var attachments []*domain.AttachmentRef
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		attachments = append(attachments, &domain.AttachmentRef{
			ExternalID: part.Body.AttachmentId,
			Filename:   part.Filename,
			MimeType:   part.MimeType,
			Size:       part.Body.Size,
		})
	}

	for _, p := range part.Parts {
		attachments = append(attachments, extractAttachments(p)...)
	}
	return attachments
}

func parseAddress(raw string) string {
	if raw == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(raw); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(raw)
}

func buildRawMessage(outbound *out.OutboundMail) string {
	var buf strings.Builder

	buf.WriteString(fmt.Sprintf("To: %s\r\n", outbound.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", outbound.Subject))
	if outbound.InReplyTo != "" {
		buf.WriteString(fmt.Sprintf("In-Reply-To: %s\r\n", outbound.InReplyTo))
		buf.WriteString(fmt.Sprintf("References: %s\r\n", outbound.InReplyTo))
	}
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(outbound.Body)

	return buf.String()
}

func (a *GmailAdapter) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case 404:
			return apperr.NotFound("gmail resource").WithError(err)
		case 401, 403:
			return apperr.ExternalError("gmail", fmt.Errorf("access denied: %w", err))
		case 429:
			return apperr.ExternalError("gmail", fmt.Errorf("rate limited: %w", err))
		}
	}
	return apperr.ExternalError("gmail", fmt.Errorf("%s: %w", defaultMsg, err))
}

var _ out.MailProviderPort = (*GmailAdapter)(nil)
