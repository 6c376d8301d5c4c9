package vectorstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-rag/internal/chromemdb"
	"paper-rag/internal/config"
	"paper-rag/internal/models"
)

var vocabulary = []string{"attention", "dataset", "gradient"}

// keywordEmbedder counts vocabulary words, plus a constant so no vector is zero
type keywordEmbedder struct {
	err   error
	calls int
}

func (k *keywordEmbedder) vector(text string) []float32 {
	v := make([]float32, len(vocabulary)+1)
	lower := strings.ToLower(text)
	for i, w := range vocabulary {
		v[i] = float32(strings.Count(lower, w))
	}
	v[len(vocabulary)] = 0.1
	return v
}

func (k *keywordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	k.calls++
	if k.err != nil {
		return nil, k.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = k.vector(t)
	}
	return out, nil
}

func (k *keywordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if k.err != nil {
		return nil, k.err
	}
	return k.vector(text), nil
}

func chunks() []models.Chunk {
	return []models.Chunk{
		{ID: "p-1", Content: "Self attention relates positions of a sequence.", Source: "p.pdf", ChunkID: 1},
		{ID: "p-2", Content: "The dataset has ten thousand images.", Source: "p.pdf", ChunkID: 2},
		{ID: "p-3", Content: "We train with stochastic gradient descent.", Source: "p.pdf", ChunkID: 3},
	}
}

func newIndex(t *testing.T, e *keywordEmbedder) *Index {
	t.Helper()
	backend, err := chromemdb.NewVectorDBManager("", "test", true, "")
	require.NoError(t, err)
	return NewIndex(e, backend)
}

func TestBuildAndQuery(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, &keywordEmbedder{})

	require.NoError(t, idx.Build(ctx, chunks()))
	assert.Equal(t, 3, idx.Count())

	results, err := idx.Query(ctx, "What dataset was used?", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "p-2", results[0].Chunk.ID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	results, err = idx.Query(ctx, "how does attention work", 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, "p-1", results[0].Chunk.ID)
}

func TestBuildEmbeddingFailureKeepsIndex(t *testing.T) {
	ctx := context.Background()
	e := &keywordEmbedder{}
	idx := newIndex(t, e)
	require.NoError(t, idx.Build(ctx, chunks()))

	e.err = errors.New("429 too many requests")
	err := idx.Build(ctx, chunks()[:1])
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.Equal(t, 3, idx.Count())

	_, err = idx.Query(ctx, "attention", 1)
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestBuildCancelledKeepsIndex(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, &keywordEmbedder{})
	require.NoError(t, idx.Build(ctx, chunks()[:2]))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.Error(t, idx.Build(cancelled, chunks()))
	assert.Equal(t, 2, idx.Count())
}

func TestQueryRejectsEmptyQuestion(t *testing.T) {
	idx := newIndex(t, &keywordEmbedder{})
	_, err := idx.Query(context.Background(), "  ", 3)
	assert.Error(t, err)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, &keywordEmbedder{})
	require.NoError(t, idx.Build(ctx, chunks()))
	require.NoError(t, idx.Reset(ctx))
	assert.Equal(t, 0, idx.Count())

	results, err := idx.Query(ctx, "attention", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestContextIsEmbedded(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, &keywordEmbedder{})
	c := chunks()
	c[2].Context = "This chunk describes the dataset used for training."
	require.NoError(t, idx.Build(ctx, c))

	results, err := idx.Query(ctx, "dataset dataset", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	ids := []string{results[0].Chunk.ID, results[1].Chunk.ID}
	assert.ElementsMatch(t, []string{"p-2", "p-3"}, ids)
	// stored content is the chunk text without the context
	for _, r := range results {
		assert.NotContains(t, r.Chunk.Content, "This chunk describes")
	}
}

func TestNewBackend(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Path = t.TempDir()

	b, err := NewBackend(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &chromemdb.VectorDBManager{}, b)

	cfg.VectorStore.Type = "faiss"
	_, err = NewBackend(context.Background(), cfg)
	assert.Error(t, err)
}
