package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Direction of a message relative to the support mailbox.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageRole distinguishes sent messages from unsent drafts.
type MessageRole string

const (
	RoleNormal MessageRole = "normal"
	RoleDraft  MessageRole = "draft"
)

// Channel identifies the transport a message arrived on.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelWeb   Channel = "web"
)

// Message is one communication on a thread. The provider message id is
// the de-duplication key: once seen it never yields a second row.
type Message struct {
	ID         int64       `json:"id"`
	ThreadID   int64       `json:"thread_id"`
	Direction  Direction   `json:"direction"`
	Role       MessageRole `json:"role"`
	Channel    Channel     `json:"channel"`
	Sender     string      `json:"sender"`
	Recipient  string      `json:"recipient"`
	Subject    string      `json:"subject"`
	Body       string      `json:"body"`
	ProviderID string      `json:"provider_id,omitempty"`
	// Fingerprint is the content+timestamp fallback key used when the
	// channel supplies no external id. Best effort, not a guarantee.
	Fingerprint string              `json:"fingerprint,omitempty"`
	Attachments []*AttachmentRef    `json:"attachments,omitempty"`
	Meta        map[string]string   `json:"meta,omitempty"`
	SentAt      time.Time           `json:"sent_at"`
	CreatedAt   time.Time           `json:"created_at"`
}

// AttachmentRef is a descriptor for an attachment held by the provider.
// Content is never extracted; the descriptor is enough to re-fetch or
// forward it.
type AttachmentRef struct {
	ExternalID string `json:"external_id"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
}

// Fingerprint derives the fallback de-duplication key from sender,
// body and send time truncated to the second.
func MessageFingerprint(sender, body string, sentAt time.Time) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", sender, body, sentAt.Unix())))
	return hex.EncodeToString(h[:])
}

// RawMessage is the full inbound payload as received from the provider,
// stored outside the relational schema.
type RawMessage struct {
	MessageID   int64             `json:"message_id" bson:"message_id"`
	ThreadID    int64             `json:"thread_id" bson:"thread_id"`
	ProviderID  string            `json:"provider_id" bson:"provider_id"`
	TextBody    string            `json:"text_body" bson:"text_body"`
	HTMLBody    string            `json:"html_body,omitempty" bson:"html_body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" bson:"headers,omitempty"`
	Attachments []*AttachmentRef  `json:"attachments,omitempty" bson:"attachments,omitempty"`
	StoredAt    time.Time         `json:"stored_at" bson:"stored_at"`
}

// InboundMessage is the normalized form handed to ingestion before a
// Message row exists.
type InboundMessage struct {
	ProviderID     string
	ProviderThread string
	Channel        Channel
	Sender         string
	Recipient      string
	Subject        string
	Body           string
	HTMLBody       string
	Headers        map[string]string
	Attachments    []*AttachmentRef
	SentAt         time.Time
}
