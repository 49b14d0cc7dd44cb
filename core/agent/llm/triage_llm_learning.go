package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"triage_server/core/domain"
)

// KnowledgeCandidate is the raw mined proposal before scoring.
type KnowledgeCandidate struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	IntentTags  []string `json:"intent_tags"`
	ProductTags []string `json:"product_tags"`
}

const learningSystemPrompt = `You mine closed customer support conversations for
reusable knowledge. Given a transcript and how the case was resolved, decide
whether something generalizable was learned.

Respond with JSON only:
{
  "worth_capturing": true/false,
  "type": "new_article" | "update_article" | "instruction_update",
  "title": "short article title",
  "content": "the knowledge, written as a reusable help article",
  "intent_tags": ["ORDER_STATUS"],
  "product_tags": ["brake-pads"]
}

Set worth_capturing to false when the case was routine and covered by
existing knowledge, or too specific to one customer to reuse.`

// MineKnowledge extracts a knowledge candidate from a closed thread
// transcript. Returns nil when nothing reusable was learned.
func (c *Client) MineKnowledge(ctx context.Context, transcript string, summary *domain.ObservationSummary) (*KnowledgeCandidate, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Transcript:\n%s\n", truncateBody(transcript, 4000))

	if summary != nil {
		sb.WriteString("\nHuman handler summary:\n")
		for _, q := range summary.QuestionsAsked {
			fmt.Fprintf(&sb, "- asked: %s\n", q)
		}
		for _, s := range summary.StepsTaken {
			fmt.Fprintf(&sb, "- did: %s\n", s)
		}
		for _, n := range summary.NewInformation {
			fmt.Fprintf(&sb, "- learned: %s\n", n)
		}
		if summary.Notes != "" {
			fmt.Fprintf(&sb, "- notes: %s\n", summary.Notes)
		}
	}

	resp, _, err := c.CompleteJSON(ctx, learningSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimSuffix(resp, "```")
	resp = strings.TrimSpace(resp)

	var parsed struct {
		WorthCapturing bool `json:"worth_capturing"`
		KnowledgeCandidate
	}
	if err := json.Unmarshal([]byte(resp), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse mining response: %w", err)
	}

	if !parsed.WorthCapturing || parsed.Title == "" || parsed.Content == "" {
		return nil, nil
	}

	return &parsed.KnowledgeCandidate, nil
}
