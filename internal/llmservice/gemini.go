package llmservice

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"paper-rag/internal/config"
	"paper-rag/internal/models"
)

type GeminiChat struct {
	models      *genai.Models
	model       string
	temperature float32
}

func NewGeminiChat(ctx context.Context, cfg *config.LLMConfig) (*GeminiChat, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return &GeminiChat{models: client.Models, model: cfg.Model, temperature: float32(cfg.Temperature)}, nil
}

func (g *GeminiChat) Chat(ctx context.Context, messages []models.Message) (string, error) {
	contents, genConfig := g.request(messages)

	resp, err := g.models.GenerateContent(ctx, g.model, contents, genConfig)
	if err != nil {
		return "", fmt.Errorf("chat generation failed: %w", err)
	}

	var response strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				response.WriteString(part.Text)
			}
			if response.Len() > 0 {
				break
			}
		}
	}
	if response.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return response.String(), nil
}

func (g *GeminiChat) request(messages []models.Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, rest := splitSystem(messages)

	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := genai.RoleUser
		if m.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(m.Content)},
		})
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if system != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return contents, genConfig
}
