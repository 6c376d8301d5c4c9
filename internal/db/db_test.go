package db

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-rag/internal/config"
	"paper-rag/internal/models"
)

func TestToDocumentsAndResults(t *testing.T) {
	entries := []models.IndexEntry{
		{Chunk: models.Chunk{ID: "a-1", Content: "x", Source: "a.pdf", ChunkID: 1, Section: "Results"}, Embedding: []float32{0.1, 0.2}},
	}

	docs := toDocuments("papers", entries)
	require.Len(t, docs, 1)
	assert.Equal(t, "papers", docs[0].Collection)
	assert.Equal(t, "a-1", docs[0].ChunkKey)
	assert.Equal(t, []float32{0.1, 0.2}, docs[0].Embedding.Slice())

	docs[0].Distance = 0.25
	results := toResults(docs)
	require.Len(t, results, 1)
	assert.Equal(t, "a-1", results[0].Chunk.ID)
	assert.Equal(t, "Results", results[0].Chunk.Section)
	assert.InDelta(t, 0.75, results[0].Score, 1e-6)
}

func TestConnectDBUnknownDriver(t *testing.T) {
	_, err := ConnectDB(&config.DatabaseConfig{Driver: "sqlite"})
	assert.Error(t, err)
}

// Runs against a real Postgres with pgvector when DATABASE_URL is set.
func TestPGVectorStore(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()

	store, err := NewPGVectorStore(ctx, &config.DatabaseConfig{DSN: dsn, Driver: "pgdriver"}, "test-collection", 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, DropDocuments(ctx, store.db))
		store.Close()
	})

	entries := []models.IndexEntry{
		{Chunk: models.Chunk{ID: "p-1", Content: "attention", Source: "p.pdf", ChunkID: 1}, Embedding: []float32{1, 0, 0}},
		{Chunk: models.Chunk{ID: "p-2", Content: "data", Source: "p.pdf", ChunkID: 2}, Embedding: []float32{0, 1, 0}},
	}
	require.NoError(t, store.Replace(ctx, entries))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := store.Search(ctx, []float32{1, 0.1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p-1", results[0].Chunk.ID)

	require.NoError(t, store.Reset(ctx))
	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
