package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Client wraps the chat-completion API behind a global concurrency
// limit. All classifier agents share one Client so the limit holds
// across stages.
type Client struct {
	api     *openai.Client
	model   string
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *logrus.Logger
}

func NewClient(apiKey, model string, maxConcurrent int64, timeout time.Duration, logger *logrus.Logger) *Client {
	c := &Client{
		model:   model,
		sem:     semaphore.NewWeighted(maxConcurrent),
		timeout: timeout,
		logger:  logger,
	}
	if apiKey != "" {
		c.api = openai.NewClient(apiKey)
	}
	return c
}

// Enabled reports whether an API key was configured. Disabled clients
// make every classification fall back to its neutral default.
func (c *Client) Enabled() bool {
	return c.api != nil
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if c.api == nil {
		return "", fmt.Errorf("ai client not configured")
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.1,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	content := resp.Choices[0].Message.Content
	c.logger.WithFields(logrus.Fields{
		"model":        c.model,
		"prompt_len":   len(userPrompt),
		"response_len": len(content),
		"total_tokens": resp.Usage.TotalTokens,
	}).Debug("chat completion")

	return content, nil
}

// extractJSON strips a markdown code fence from a model response,
// returning the inner payload.
func extractJSON(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		text = text[idx+len("```json"):]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	} else if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+3:]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}
	return strings.TrimSpace(text)
}
