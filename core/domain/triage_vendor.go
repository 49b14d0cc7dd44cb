package domain

import (
	"time"
)

// VendorRequestStatus tracks one outstanding request to a fulfillment
// vendor. pending is the only state a reply can be matched against.
type VendorRequestStatus string

const (
	VendorRequestPending   VendorRequestStatus = "pending"
	VendorRequestReceived  VendorRequestStatus = "received"
	VendorRequestForwarded VendorRequestStatus = "forwarded"
	VendorRequestRejected  VendorRequestStatus = "rejected"
	VendorRequestValidated VendorRequestStatus = "validated"
)

// VendorRequestType is the kind of request sent to a vendor.
type VendorRequestType string

const (
	VendorRequestTracking    VendorRequestType = "tracking"
	VendorRequestReplacement VendorRequestType = "replacement"
	VendorRequestInspection  VendorRequestType = "inspection"
)

// VendorResponseData is the matched reply content attached to a
// request, recorded once when the match succeeds.
type VendorResponseData struct {
	MessageID   int64            `json:"message_id"`
	Sender      string           `json:"sender"`
	Body        string           `json:"body"`
	Attachments []*AttachmentRef `json:"attachments,omitempty"`
	MatchedAt   time.Time        `json:"matched_at"`
}

// VendorRequest ties an order to an expected vendor reply.
type VendorRequest struct {
	ID            int64               `json:"id"`
	OrderNumber   string              `json:"order_number"`
	CustomerEmail string              `json:"customer_email"`
	Vendor        string              `json:"vendor"`
	RequestType   VendorRequestType   `json:"request_type"`
	Status        VendorRequestStatus `json:"status"`
	ResponseData  *VendorResponseData `json:"response_data,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Matchable reports whether a reply may still be attached.
func (v *VendorRequest) Matchable() bool {
	return v.Status == VendorRequestPending
}
