// Package llm wraps the OpenAI-compatible provider behind the
// classification, generation and embedding contracts.
package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

type Client struct {
	client      *openai.Client
	model       string
	embedModel  openai.EmbeddingModel
	maxTokens   int
	temperature float32
}

type ClientConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	MaxTokens      int
	Temperature    float64
}

const DefaultModel = "gpt-4o-mini"

func NewClient(apiKey string) *Client {
	return NewClientWithConfig(ClientConfig{APIKey: apiKey})
}

func NewClientWithConfig(cfg ClientConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	embedModel := openai.EmbeddingModel(cfg.EmbeddingModel)
	if cfg.EmbeddingModel == "" {
		embedModel = openai.SmallEmbedding3
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.3
	}
	return &Client{
		client:      openai.NewClient(cfg.APIKey),
		model:       model,
		embedModel:  embedModel,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
	}
}

func (c *Client) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, int, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
	})
	if err != nil {
		return "", 0, err
	}

	if len(resp.Choices) == 0 {
		return "", resp.Usage.TotalTokens, nil
	}

	return resp.Choices[0].Message.Content, resp.Usage.TotalTokens, nil
}

// CompleteJSON forces a JSON object response.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, int, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", 0, err
	}

	if len(resp.Choices) == 0 {
		return "{}", resp.Usage.TotalTokens, nil
	}

	return resp.Choices[0].Message.Content, resp.Usage.TotalTokens, nil
}

func (c *Client) Embedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: c.embedModel,
		Input: []string{text},
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, nil
	}

	return resp.Data[0].Embedding, nil
}

func (c *Client) EmbeddingBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: c.embedModel,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}

	result := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		result[i] = data.Embedding
	}

	return result, nil
}

// Embed implements the embedder contract.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.Embedding(ctx, text)
}

// EmbedBatch implements the embedder contract.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.EmbeddingBatch(ctx, texts)
}

func truncateBody(body string, maxLen int) string {
	if len(body) <= maxLen {
		return body
	}
	return body[:maxLen] + "..."
}
