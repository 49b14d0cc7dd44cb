package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"triage_server/core/domain"
)

type classifyResponse struct {
	Intent      string   `json:"intent"`
	Confidence  float64  `json:"confidence"`
	Reason      string   `json:"reason"`
	ProductTags []string `json:"product_tags"`
	VehicleTags []string `json:"vehicle_tags"`
}

const classifySystemPrompt = `You are a customer support intent classifier for an
e-commerce parts store. Classify the customer message into exactly one intent
and respond with JSON only.

Intents:
- ORDER_STATUS: asking where an order is or when it ships
- REFUND_REQUEST: asking for money back
- WARRANTY_CLAIM: reporting a defective or failed part under warranty
- PRODUCT_QUESTION: asking about fitment, specs, or compatibility
- SHIPPING_ISSUE: wrong, damaged, or lost delivery
- RETURN_REQUEST: wants to send an item back
- COMPLAINT: dissatisfaction without a concrete request
- VENDOR_REPLY: a fulfillment vendor answering one of our requests
- OTHER: support-related but none of the above

Also extract product categories the message mentions (e.g. "brake-pads",
"alternator") into product_tags and vehicle make/model/year mentions
(e.g. "honda-civic", "2018") into vehicle_tags. Lowercase, hyphenated,
at most 5 each, empty arrays when nothing is mentioned.

Respond with this exact JSON format:
{
  "intent": "INTENT_NAME",
  "confidence": 0.0-1.0,
  "reason": "one short sentence",
  "product_tags": [],
  "vehicle_tags": []
}`

// Classify assigns an intent plus confidence to a message. Any provider
// or parse failure degrades to UNKNOWN with confidence 0; the error is
// returned for logging but the result is always usable.
func (c *Client) Classify(ctx context.Context, subject, body string, history []string) (domain.IntentResult, error) {
	unknown := domain.IntentResult{Intent: domain.IntentUnknown, Confidence: 0}

	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Earlier messages in this conversation (oldest first):\n")
		for _, h := range history {
			sb.WriteString("- ")
			sb.WriteString(truncateBody(h, 300))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Subject: %s\n\nMessage:\n%s", subject, truncateBody(body, 2000))

	resp, _, err := c.CompleteJSON(ctx, classifySystemPrompt, sb.String())
	if err != nil {
		return unknown, err
	}

	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimSuffix(resp, "```")
	resp = strings.TrimSpace(resp)

	var parsed classifyResponse
	if err := json.Unmarshal([]byte(resp), &parsed); err != nil {
		return unknown, fmt.Errorf("failed to parse classification response: %w", err)
	}

	intent := domain.ParseIntent(parsed.Intent)
	if intent == domain.IntentUnknown {
		return unknown, nil
	}

	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return domain.IntentResult{
		Intent:      intent,
		Confidence:  confidence,
		Reason:      parsed.Reason,
		ProductTags: normalizeTags(parsed.ProductTags),
		VehicleTags: normalizeTags(parsed.VehicleTags),
	}, nil
}

const maxExtractedTags = 5

func normalizeTags(tags []string) []string {
	var out []string
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		out = append(out, tag)
		if len(out) == maxExtractedTags {
			break
		}
	}
	return out
}
