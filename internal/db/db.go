package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"paper-rag/internal/config"
	"paper-rag/internal/models"
)

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            int64           `bun:"id,pk,autoincrement"`
	Collection    string          `bun:"collection,notnull"`
	ChunkKey      string          `bun:"chunk_key,notnull"`
	Source        string          `bun:"source"`
	ChunkID       int             `bun:"chunk_id"`
	Section       string          `bun:"section"`
	Content       string          `bun:"content,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Distance      float64         `bun:"distance,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with the configured driver
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "pq":
		return sql.Open("postgres", cfg.DSN)
	case "pgdriver", "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// InitDB enables pgvector and creates the documents table. A positive
// dimension pins the embedding column size.
func InitDB(ctx context.Context, db *bun.DB, dimension int) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	if dimension > 0 {
		q := fmt.Sprintf("ALTER TABLE documents ALTER COLUMN embedding TYPE vector(%d)", dimension)
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to set embedding dimension: %w", err)
		}
	}
	return nil
}

// DropDocuments removes the documents table and every collection in it
func DropDocuments(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx)
	return err
}

// PGVectorStore keeps one collection of chunks in the documents table
type PGVectorStore struct {
	db         *bun.DB
	collection string
}

// NewPGVectorStore connects, initializes the schema and returns the store
func NewPGVectorStore(ctx context.Context, cfg *config.DatabaseConfig, collection string, dimension int) (*PGVectorStore, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db := NewDB(sqldb, cfg.Debug)
	if err := InitDB(ctx, db, dimension); err != nil {
		db.Close()
		return nil, err
	}
	return &PGVectorStore{db: db, collection: collection}, nil
}

func toDocuments(collection string, entries []models.IndexEntry) []Document {
	docs := make([]Document, len(entries))
	for i, e := range entries {
		docs[i] = Document{
			Collection: collection,
			ChunkKey:   e.Chunk.ID,
			Source:     e.Chunk.Source,
			ChunkID:    e.Chunk.ChunkID,
			Section:    e.Chunk.Section,
			Content:    e.Chunk.Content,
			Embedding:  pgvector.NewVector(e.Embedding),
		}
	}
	return docs
}

// cosine distance is in [0, 2]; similarity is 1 - distance
func toResults(docs []Document) []models.SearchResult {
	out := make([]models.SearchResult, len(docs))
	for i, d := range docs {
		out[i] = models.SearchResult{
			Chunk: models.Chunk{
				ID:      d.ChunkKey,
				Content: d.Content,
				Source:  d.Source,
				ChunkID: d.ChunkID,
				Section: d.Section,
			},
			Score: float32(1 - d.Distance),
		}
	}
	return out
}

// Replace swaps the collection contents in one transaction
func (s *PGVectorStore) Replace(ctx context.Context, entries []models.IndexEntry) error {
	docs := toDocuments(s.collection, entries)
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*Document)(nil)).Where("collection = ?", s.collection).Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear collection: %w", err)
		}
		if len(docs) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&docs).Exec(ctx); err != nil {
			return fmt.Errorf("failed to store documents: %w", err)
		}
		log.Info().Str("collection", s.collection).Int("documents", len(docs)).Msg("Stored documents")
		return nil
	})
}

func (s *PGVectorStore) Search(ctx context.Context, embedding []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(embedding)

	var docs []Document
	err := s.db.NewSelect().
		Model(&docs).
		Column("id", "chunk_key", "source", "chunk_id", "section", "content").
		ColumnExpr("embedding <=> ? AS distance", vec).
		Where("collection = ?", s.collection).
		OrderExpr("embedding <=> ?", vec).
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	return toResults(docs), nil
}

func (s *PGVectorStore) Reset(ctx context.Context) error {
	_, err := s.db.NewDelete().Model((*Document)(nil)).Where("collection = ?", s.collection).Exec(ctx)
	return err
}

func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*Document)(nil)).Where("collection = ?", s.collection).Count(ctx)
}

func (s *PGVectorStore) Close() error {
	return s.db.Close()
}
