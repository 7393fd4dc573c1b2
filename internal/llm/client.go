// Package llm talks to the black-box text transformer: one client for
// free-text conversation and one schema-constrained transformer that turns
// extracted document text into a validated Document.
package llm

import (
	"context"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mikhailstasyuk/medtesthelper-bot/internal/common"
)

// Client is the minimal completion surface the bot depends on.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GroqClient calls a Groq (OpenAI-compatible) chat/completions endpoint.
type GroqClient struct {
	client *openai.Client
	cfg    common.LLMConfig
	logger *slog.Logger
}

func NewGroqClient(cfg common.LLMConfig, logger *slog.Logger) *GroqClient {
	if logger == nil {
		logger = slog.Default()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &GroqClient{
		client: openai.NewClientWithConfig(oc),
		cfg:    cfg,
		logger: logger,
	}
}

// Complete sends one system+user exchange and returns the raw assistant
// text. The call is bounded by the configured timeout so a stuck backend
// cannot wedge the per-user queue.
func (c *GroqClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		c.logger.Error("llm.complete.http_error", "model", c.cfg.Model, "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		c.logger.Error("llm.complete.no_choices", "model", c.cfg.Model)
		return "", common.NewAppError("LLM_ERROR", "no choices in completion response", common.ErrTransformerUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}
