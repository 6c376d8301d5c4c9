package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"paper-rag/internal/config"
	"paper-rag/internal/models"
)

const defaultClaudeMaxTokens = 1024

type ClaudeChat struct {
	messages    *anthropic.MessageService
	model       string
	temperature float64
	maxTokens   int64
}

func NewClaudeChat(cfg *config.LLMConfig) *ClaudeChat {
	opts := []option.RequestOption{option.WithAPIKey(cfg.Key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}
	return &ClaudeChat{
		messages:    &client.Messages,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}
}

func (c *ClaudeChat) Chat(ctx context.Context, messages []models.Message) (string, error) {
	params := c.params(messages)

	resp, err := c.messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude API call failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}
	if response.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return response.String(), nil
}

func (c *ClaudeChat) params(messages []models.Message) anthropic.MessageNewParams {
	system, rest := splitSystem(messages)

	claudeMessages := make([]anthropic.MessageParam, 0, len(rest))
	for _, m := range rest {
		if m.Role == models.RoleAssistant {
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		} else {
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  claudeMessages,
	}
	if c.temperature > 0 {
		params.Temperature = anthropic.Float(c.temperature)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}
