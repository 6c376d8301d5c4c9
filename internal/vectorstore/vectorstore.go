package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"paper-rag/internal/chromemdb"
	"paper-rag/internal/config"
	"paper-rag/internal/db"
	"paper-rag/internal/embedding"
	"paper-rag/internal/helper"
	"paper-rag/internal/models"
)

// ErrEmbedding marks failures of the embedding service, as opposed to the backend
var ErrEmbedding = errors.New("embedding failed")

// Backend persists index entries and runs nearest-neighbour search.
type Backend interface {
	Replace(ctx context.Context, entries []models.IndexEntry) error
	Search(ctx context.Context, embedding []float32, k int) ([]models.SearchResult, error)
	Reset(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// Store is the index a session queries.
type Store interface {
	Build(ctx context.Context, chunks []models.Chunk) error
	Query(ctx context.Context, question string, k int) ([]models.SearchResult, error)
	Reset(ctx context.Context) error
	Count() int
	Close() error
}

// Index embeds chunks and questions and delegates storage to a Backend
type Index struct {
	embedder embedding.Embedder
	backend  Backend
}

func NewIndex(embedder embedding.Embedder, backend Backend) *Index {
	return &Index{embedder: embedder, backend: backend}
}

// New creates the backend selected by cfg.VectorStore.Type and wraps it
func New(ctx context.Context, cfg *config.Config, embedder embedding.Embedder) (*Index, error) {
	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewIndex(embedder, backend), nil
}

func NewBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	vs := cfg.VectorStore
	switch vs.Type {
	case "pgvector":
		return db.NewPGVectorStore(ctx, &cfg.Database, vs.Collection, vs.Dimension)
	case "chromem", "":
		inMemory := !vs.Persist
		if vs.Persist || vs.EncryptionKey != "" {
			if err := helper.CreateFolder(vs.Path); err != nil {
				return nil, fmt.Errorf("failed to create vector store folder: %w", err)
			}
		}
		return chromemdb.NewVectorDBManager(vs.Path, vs.Collection, inMemory, vs.EncryptionKey)
	default:
		return nil, fmt.Errorf("unknown vector store type %q", vs.Type)
	}
}

// Build replaces the index contents with chunks. Embedding happens before the
// backend is touched, so a failed embedding leaves the previous index intact.
func (i *Index) Build(ctx context.Context, chunks []models.Chunk) error {
	entries, err := embedding.EmbedChunks(ctx, i.embedder, chunks)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if err := i.backend.Replace(ctx, entries); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	log.Info().Int("chunks", len(entries)).Msg("Index built")
	return nil
}

// Query returns up to k chunks most similar to question, best first
func (i *Index) Query(ctx context.Context, question string, k int) ([]models.SearchResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New("question must not be empty")
	}
	vec, err := i.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	results, err := i.backend.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("question", helper.Truncate(question, 80)).Int("results", len(results)).Msg("Queried index")
	return results, nil
}

func (i *Index) Reset(ctx context.Context) error {
	return i.backend.Reset(ctx)
}

// Count is the number of indexed chunks, 0 when the backend cannot be read
func (i *Index) Count() int {
	n, err := i.backend.Count(context.Background())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to count index entries")
		return 0
	}
	return n
}

func (i *Index) Close() error {
	return i.backend.Close()
}
