package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"triage_server/core/port/out"
)

type generateResponse struct {
	Reply         string  `json:"reply"`
	CitedChunkIDs []int64 `json:"cited_chunk_ids"`
}

const generateSystemPrompt = `You are a customer support agent for an e-commerce
parts store. Draft a reply to the customer message using ONLY the knowledge
snippets provided. Each snippet has a numeric id.

Rules:
- Be concise, factual and polite.
- Never invent order details, prices, policies or timelines that are not in
  the snippets or the order context.
- If the snippets do not cover the question, say you will check and follow up.
- List the ids of every snippet you actually used.

Respond with this exact JSON format:
{
  "reply": "the reply body text",
  "cited_chunk_ids": [1, 2]
}`

// GenerateDraft produces a grounded reply draft with citations.
func (c *Client) GenerateDraft(ctx context.Context, req *out.DraftRequest) (*out.DraftResult, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Classified intent: %s\n\n", req.Intent)

	if req.Customer != nil && req.Customer.Verified {
		sb.WriteString("Verified customer context:\n")
		if req.Customer.CustomerName != "" {
			fmt.Fprintf(&sb, "- Name: %s\n", req.Customer.CustomerName)
		}
		if req.Customer.OrderNumber != "" {
			fmt.Fprintf(&sb, "- Order: %s (status: %s)\n", req.Customer.OrderNumber, req.Customer.OrderStatus)
		}
		if req.Customer.TrackingCode != "" {
			fmt.Fprintf(&sb, "- Tracking: %s\n", req.Customer.TrackingCode)
		}
		sb.WriteString("\n")
	}

	if len(req.Chunks) > 0 {
		sb.WriteString("Knowledge snippets:\n")
		for _, ch := range req.Chunks {
			fmt.Fprintf(&sb, "[%d] (%s) %s\n", ch.Chunk.ID, ch.DocTitle, truncateBody(ch.Chunk.Text, 600))
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("Knowledge snippets: none found.\n\n")
	}

	if len(req.History) > 0 {
		sb.WriteString("Earlier messages (oldest first):\n")
		for _, h := range req.History {
			sb.WriteString("- ")
			sb.WriteString(truncateBody(h, 300))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Customer message:\nSubject: %s\n\n%s", req.Subject, truncateBody(req.Body, 2000))

	resp, tokens, err := c.CompleteJSON(ctx, generateSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimSuffix(resp, "```")
	resp = strings.TrimSpace(resp)

	var parsed generateResponse
	if err := json.Unmarshal([]byte(resp), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse draft response: %w", err)
	}

	if parsed.Reply == "" {
		return nil, fmt.Errorf("empty draft reply")
	}

	// Keep only citations that reference a provided chunk.
	valid := make(map[int64]bool, len(req.Chunks))
	for _, ch := range req.Chunks {
		valid[ch.Chunk.ID] = true
	}
	cited := make([]int64, 0, len(parsed.CitedChunkIDs))
	for _, id := range parsed.CitedChunkIDs {
		if valid[id] {
			cited = append(cited, id)
		}
	}

	return &out.DraftResult{
		Text:          parsed.Reply,
		CitedChunkIDs: cited,
		TokensUsed:    tokens,
	}, nil
}
