package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/embeddings/huggingface"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"paper-rag/internal/config"
	"paper-rag/internal/helper"
	"paper-rag/internal/llmservice"
	"paper-rag/internal/models"
)

// Embedder turns texts into vectors. Implementations are chosen by
// configuration at construction time.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

var ErrUnknownProvider = errors.New("unknown embedding provider")

// NewEmbedder creates the embedder selected by cfg.Provider
func NewEmbedder(ctx context.Context, cfg *config.LLMConfig) (Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating embedder")

	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(cfg)
	case "ollama":
		return NewOllamaEmbedder(cfg)
	case "huggingface":
		return NewHuggingFaceEmbedder(cfg)
	case "gemini":
		return NewGeminiEmbedder(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// NewOpenAIEmbedder works with OpenAI and any compatible endpoint set in BaseURL
func NewOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai client: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

// NewHuggingFaceEmbedder uses the Hugging Face inference API. The client reads
// its token from HUGGINGFACEHUB_API_TOKEN, so a configured key is exported there.
func NewHuggingFaceEmbedder(cfg *config.LLMConfig) (*huggingface.Huggingface, error) {
	if cfg.Key != "" {
		if err := os.Setenv("HUGGINGFACEHUB_API_TOKEN", cfg.Key); err != nil {
			return nil, err
		}
	}
	e, err := huggingface.NewHuggingface(huggingface.WithModel(cfg.Model))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize huggingface embedder: %w", err)
	}
	return e, nil
}

// EmbedChunks embeds chunk contents in one batch, pairing each chunk with its vector
func EmbedChunks(ctx context.Context, embedder Embedder, chunks []models.Chunk) ([]models.IndexEntry, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.EmbeddingText()
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	entries := make([]models.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = models.IndexEntry{Chunk: c, Embedding: vectors[i]}
	}
	return entries, nil
}

const maxContextDocumentLength = 8000

// GenerateContext asks the chat model for a short description placing chunk
// within document, used to enrich the chunk before embedding
func GenerateContext(ctx context.Context, chat llmservice.ChatModel, document, chunk string) (string, error) {
	log.Debug().Int("chunk_length", len(chunk)).Msg("Generating context for chunk")
	prompt := fmt.Sprintf(models.ContextPromptTemplate, helper.Truncate(document, maxContextDocumentLength), chunk)

	res, err := chat.Chat(ctx, []models.Message{{Role: models.RoleUser, Content: prompt}})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res), nil
}
