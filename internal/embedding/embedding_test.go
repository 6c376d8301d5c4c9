package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"

	"paper-rag/internal/config"
	"paper-rag/internal/models"
)

// lengthClient embeds each text as [len(text), 1]
type lengthClient struct {
	texts []string
	err   error
	short bool
}

func (c *lengthClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	c.texts = append(c.texts, texts...)
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	if c.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

type fakeChat struct {
	prompt string
	answer string
	err    error
}

func (f *fakeChat) Chat(ctx context.Context, messages []models.Message) (string, error) {
	f.prompt = messages[len(messages)-1].Content
	return f.answer, f.err
}

func TestEmbedChunks(t *testing.T) {
	client := &lengthClient{}
	e, err := embeddings.NewEmbedder(client)
	require.NoError(t, err)

	chunks := []models.Chunk{
		{ID: "a-1", Content: "abc"},
		{ID: "a-2", Content: "abcdef", Context: "ctx"},
	}
	entries, err := EmbedChunks(context.Background(), e, chunks)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a-1", entries[0].Chunk.ID)
	assert.Equal(t, []float32{3, 1}, entries[0].Embedding)
	// context is embedded with the chunk
	assert.Equal(t, []float32{float32(len("ctx\n\nabcdef")), 1}, entries[1].Embedding)
}

func TestEmbedChunksEmpty(t *testing.T) {
	client := &lengthClient{}
	e, err := embeddings.NewEmbedder(client)
	require.NoError(t, err)

	entries, err := EmbedChunks(context.Background(), e, nil)
	require.NoError(t, err)
	assert.Nil(t, entries)
	assert.Empty(t, client.texts)
}

func TestEmbedChunksErrors(t *testing.T) {
	boom := errors.New("service down")
	e, err := embeddings.NewEmbedder(&lengthClient{err: boom})
	require.NoError(t, err)
	_, err = EmbedChunks(context.Background(), e, []models.Chunk{{ID: "x", Content: "x"}})
	assert.ErrorIs(t, err, boom)

	e, err = embeddings.NewEmbedder(&lengthClient{short: true})
	require.NoError(t, err)
	_, err = EmbedChunks(context.Background(), e, []models.Chunk{{ID: "x", Content: "x"}, {ID: "y", Content: "y"}})
	assert.Error(t, err)
}

func TestNewEmbedder(t *testing.T) {
	ctx := context.Background()

	e, err := NewEmbedder(ctx, &config.LLMConfig{Provider: "openai", Model: "text-embedding-ada-002", Key: "sk-test"})
	require.NoError(t, err)
	assert.IsType(t, &embeddings.EmbedderImpl{}, e)

	e, err = NewEmbedder(ctx, &config.LLMConfig{Provider: "ollama", Model: "nomic-embed-text", BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.IsType(t, &embeddings.EmbedderImpl{}, e)

	t.Setenv("HUGGINGFACEHUB_API_TOKEN", "")
	_, err = NewEmbedder(ctx, &config.LLMConfig{Provider: "huggingface", Model: "sentence-transformers/all-MiniLM-L6-v2", Key: "hf-test"})
	require.NoError(t, err)

	_, err = NewEmbedder(ctx, &config.LLMConfig{Provider: "word2vec"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestGenerateContext(t *testing.T) {
	chat := &fakeChat{answer: "  From the methods section.  "}
	doc := strings.Repeat("word ", 3000)

	got, err := GenerateContext(context.Background(), chat, doc, "the chunk")
	require.NoError(t, err)
	assert.Equal(t, "From the methods section.", got)
	assert.Contains(t, chat.prompt, "<chunk>\nthe chunk\n</chunk>")
	assert.Less(t, len(chat.prompt), len(doc))

	chat.err = errors.New("timeout")
	_, err = GenerateContext(context.Background(), chat, doc, "the chunk")
	assert.Error(t, err)
}
