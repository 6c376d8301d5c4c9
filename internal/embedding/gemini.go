package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"paper-rag/internal/config"
)

// gemini accepts at most this many contents per embed request
const geminiBatchSize = 100

type GeminiEmbedder struct {
	models *genai.Models
	model  string
}

func NewGeminiEmbedder(ctx context.Context, cfg *config.LLMConfig) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return &GeminiEmbedder{models: client.Models, model: cfg.Model}, nil
}

func (g *GeminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatchSize {
		end := min(start+geminiBatchSize, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}
		result, err := g.models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{})
		if err != nil {
			return nil, fmt.Errorf("embedding generation failed: %w", err)
		}
		if result == nil || len(result.Embeddings) != end-start {
			return nil, fmt.Errorf("expected %d embeddings from API", end-start)
		}
		for _, e := range result.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}

func (g *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
