package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"paper-rag/internal/config"
	"paper-rag/internal/models"
)

// ChatModel produces one completion for a conversation
type ChatModel interface {
	Chat(ctx context.Context, messages []models.Message) (string, error)
}

var (
	ErrUnknownProvider = errors.New("unknown chat provider")
	ErrEmptyResponse   = errors.New("no response generated from chat model")
)

// NewChatModel creates the chat model selected by cfg.Provider
func NewChatModel(ctx context.Context, cfg *config.LLMConfig) (ChatModel, error) {
	log.Debug().Str("provider", cfg.Provider).Str("model", cfg.Model).Float64("temperature", cfg.Temperature).Msg("Creating chat model")

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai client: %w", err)
		}
		return NewLangChainChat(llm, cfg), nil
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
		}
		return NewLangChainChat(llm, cfg), nil
	case "anthropic":
		return NewClaudeChat(cfg), nil
	case "gemini":
		return NewGeminiChat(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// LangChainChat adapts any langchaingo model
type LangChainChat struct {
	llm         llms.Model
	temperature float64
	maxTokens   int
}

func NewLangChainChat(llm llms.Model, cfg *config.LLMConfig) *LangChainChat {
	return &LangChainChat{llm: llm, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}
}

func (c *LangChainChat) Chat(ctx context.Context, messages []models.Message) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}

	res, err := GenerateContent(ctx, c.llm, nil, toMessageContent(messages), opts...)
	if err != nil {
		return "", err
	}
	if len(res.Choices) == 0 || res.Choices[0].Content == "" {
		return "", ErrEmptyResponse
	}
	return res.Choices[0].Content, nil
}

// call llm
func GenerateContent(ctx context.Context, llm llms.Model, tools []llms.Tool, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	log.Debug().Int("messages", len(messages)).Msg("Generating content")
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools))
	}
	return llm.GenerateContent(ctx, messages, opts...)
}

func toMessageContent(messages []models.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case models.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case models.RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextContent{Text: m.Content}},
		})
	}
	return out
}

// splitSystem separates the first system message from the rest, which the
// Claude and Gemini APIs take as a separate parameter
func splitSystem(messages []models.Message) (string, []models.Message) {
	var system string
	rest := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			if system == "" {
				system = m.Content
			}
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
