package domain

// Intent is the classified purpose of a customer message.
type Intent string

const (
	IntentOrderStatus     Intent = "ORDER_STATUS"
	IntentRefundRequest   Intent = "REFUND_REQUEST"
	IntentWarrantyClaim   Intent = "WARRANTY_CLAIM"
	IntentProductQuestion Intent = "PRODUCT_QUESTION"
	IntentShippingIssue   Intent = "SHIPPING_ISSUE"
	IntentReturnRequest   Intent = "RETURN_REQUEST"
	IntentComplaint       Intent = "COMPLAINT"
	IntentVendorReply     Intent = "VENDOR_REPLY"
	IntentOther           Intent = "OTHER"
	IntentUnknown         Intent = "UNKNOWN"
)

// AllIntents is the taxonomy offered to the classifier. UNKNOWN is the
// degraded fallback and is never offered as a choice.
var AllIntents = []Intent{
	IntentOrderStatus,
	IntentRefundRequest,
	IntentWarrantyClaim,
	IntentProductQuestion,
	IntentShippingIssue,
	IntentReturnRequest,
	IntentComplaint,
	IntentVendorReply,
	IntentOther,
}

// ParseIntent maps a raw classifier label to the taxonomy, falling back
// to UNKNOWN for anything off-taxonomy.
func ParseIntent(s string) Intent {
	for _, it := range AllIntents {
		if string(it) == s {
			return it
		}
	}
	return IntentUnknown
}

// RequiresVerification reports whether drafts for this intent may only
// be auto-sent on a verified thread.
func (i Intent) RequiresVerification() bool {
	switch i {
	case IntentOrderStatus, IntentRefundRequest, IntentWarrantyClaim,
		IntentShippingIssue, IntentReturnRequest:
		return true
	}
	return false
}

// HighStakes reports whether a draft for this intent must carry a
// no-grounding flag when generated without retrieved knowledge.
func (i Intent) HighStakes() bool {
	switch i {
	case IntentRefundRequest, IntentWarrantyClaim, IntentReturnRequest:
		return true
	}
	return false
}

// IntentResult is the classifier output. Failures degrade to
// UNKNOWN with confidence 0 instead of erroring. The tag slices carry
// product and vehicle mentions extracted from the message; they scope
// knowledge retrieval to applicable documents.
type IntentResult struct {
	Intent      Intent   `json:"intent"`
	Confidence  float64  `json:"confidence"`
	Reason      string   `json:"reason,omitempty"`
	ProductTags []string `json:"product_tags,omitempty"`
	VehicleTags []string `json:"vehicle_tags,omitempty"`
}

// Unknown reports whether the result carries no usable signal.
func (r IntentResult) Unknown() bool {
	return r.Intent == IntentUnknown || r.Confidence <= 0
}
