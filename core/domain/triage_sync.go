package domain

import (
	"time"
)

// MailboxSyncState is the polling high-water mark for one mailbox.
// HistoryCursor only moves forward; a restart resumes from it instead
// of reprocessing.
type MailboxSyncState struct {
	ID            int64      `json:"id"`
	Mailbox       string     `json:"mailbox"`
	HistoryCursor uint64     `json:"history_cursor"`
	LastPolledAt  *time.Time `json:"last_polled_at,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
	// FailureCount counts consecutive poll failures. At the configured
	// limit the mailbox is suspended until a manual reset.
	FailureCount int        `json:"failure_count"`
	Suspended    bool       `json:"suspended"`
	SuspendedAt  *time.Time `json:"suspended_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CustomerContext is the commerce lookup result used to ground drafts.
type CustomerContext struct {
	Verified      bool       `json:"verified"`
	CustomerID    string     `json:"customer_id,omitempty"`
	CustomerName  string     `json:"customer_name,omitempty"`
	OrderNumber   string     `json:"order_number,omitempty"`
	OrderStatus   string     `json:"order_status,omitempty"`
	TrackingCode  string     `json:"tracking_code,omitempty"`
	OrderedAt     *time.Time `json:"ordered_at,omitempty"`
}
