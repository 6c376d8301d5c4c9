package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"paper-rag/internal/models"
)

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
	inMemory       bool
	dbPath         string
	compress       bool
	encryptionKey  string
	filePath       string
}

const (
	compress = false

	metaSource  = "source"
	metaChunkID = "chunk_id"
	metaSection = "section"
)

// NewVectorDBManager initializes a new vector database manager. An in-memory
// database with an encryption key is restored from, and saved to, an
// encrypted export file under dbPath.
func NewVectorDBManager(dbPath, collectionName string, inMemory bool, encryptionKey string) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:             db,
		collectionName: collectionName,
		inMemory:       inMemory,
		dbPath:         dbPath,
		compress:       compress,
		encryptionKey:  encryptionKey,
		filePath:       filepath.Join(dbPath, collectionName+".chromem"),
	}

	if m.exportEnabled() {
		if _, err := os.Stat(m.filePath); err == nil {
			if err := m.Import(context.Background()); err != nil {
				return nil, err
			}
			log.Info().Str("file", m.filePath).Int("documents", m.count()).Msg("Restored collection from export")
		}
	}
	return m, nil
}

func (m *VectorDBManager) exportEnabled() bool {
	return m.inMemory && m.encryptionKey != "" && m.dbPath != ""
}

// Replace swaps the collection contents for entries. The new collection is
// built and checked in a staging database first, so a cancelled context or a
// failed export leaves the live collection untouched.
func (m *VectorDBManager) Replace(ctx context.Context, entries []models.IndexEntry) error {
	if err := validateEntries(entries); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:      e.Chunk.ID,
			Content: e.Chunk.Content,
			Metadata: map[string]string{
				metaSource:  e.Chunk.Source,
				metaChunkID: strconv.Itoa(e.Chunk.ChunkID),
				metaSection: e.Chunk.Section,
			},
			Embedding: e.Embedding,
		}
	}

	staging := chromem.NewDB()
	staged, err := fill(ctx, staging, m.collectionName, docs)
	if err != nil {
		return err
	}
	if m.exportEnabled() {
		if err := m.exportFrom(staging, staged.Name); err != nil {
			return err
		}
	}

	if m.inMemory {
		m.db = staging
		m.collection = staged
		log.Info().Int("documents", len(docs)).Msg("Swapped in rebuilt collection")
		return nil
	}

	// persistent collections are rewritten in place once staging succeeded;
	// the embeddings are local, so only disk errors can fail from here on
	if err := m.Reset(ctx); err != nil {
		return err
	}
	live, err := fill(context.WithoutCancel(ctx), m.db, m.collectionName, docs)
	if err != nil {
		return err
	}
	m.collection = live
	return nil
}

// fill creates name in db and adds docs, checking that every document landed
func fill(ctx context.Context, db *chromem.DB, name string, docs []chromem.Document) (*chromem.Collection, error) {
	// embeddings are always supplied, so the default embedding func is never called
	c, err := db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	if len(docs) == 0 {
		return c, nil
	}

	log.Info().Msgf("Adding %d documents to vector database", len(docs))
	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}
	// chromem skips the remaining documents without an error once ctx is done
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}
	if c.Count() != len(docs) {
		return nil, fmt.Errorf("failed to add documents: %d of %d stored", c.Count(), len(docs))
	}
	return c, nil
}

func validateEntries(entries []models.IndexEntry) error {
	dim := -1
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if len(e.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", e.Chunk.ID)
		}
		if dim >= 0 && len(e.Embedding) != dim {
			return fmt.Errorf("embedding dimension mismatch: expected %d, got %d", dim, len(e.Embedding))
		}
		dim = len(e.Embedding)
		if e.Chunk.ID == "" || seen[e.Chunk.ID] {
			return fmt.Errorf("chunk id %q is empty or duplicated", e.Chunk.ID)
		}
		seen[e.Chunk.ID] = true
	}
	return nil
}

// Search returns up to k chunks nearest to embedding, most similar first
func (m *VectorDBManager) Search(ctx context.Context, embedding []float32, k int) ([]models.SearchResult, error) {
	if len(embedding) == 0 {
		return nil, errors.New("query embedding must be provided")
	}
	n := m.count()
	if n == 0 || k <= 0 {
		return nil, nil
	}

	// chromem rejects NResults larger than the collection
	results, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: embedding,
		NResults:       min(k, n),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.SearchResult, len(results))
	for i, r := range results {
		chunkID, _ := strconv.Atoi(r.Metadata[metaChunkID])
		out[i] = models.SearchResult{
			Chunk: models.Chunk{
				ID:      r.ID,
				Content: r.Content,
				Source:  r.Metadata[metaSource],
				ChunkID: chunkID,
				Section: r.Metadata[metaSection],
			},
			Score: r.Similarity,
		}
	}
	return out, nil
}

// Reset drops the collection if it exists
func (m *VectorDBManager) Reset(ctx context.Context) error {
	if err := m.db.DeleteCollection(m.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	m.collection = nil
	if m.exportEnabled() {
		if err := os.Remove(m.filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove export file: %w", err)
		}
	}
	return nil
}

func (m *VectorDBManager) Count(ctx context.Context) (int, error) {
	return m.count(), nil
}

func (m *VectorDBManager) count() int {
	if m.collection == nil {
		m.collection = m.db.GetCollection(m.collectionName, nil)
	}
	if m.collection == nil {
		return 0
	}
	return m.collection.Count()
}

func (m *VectorDBManager) Close() error {
	return nil
}

// export to file
func (m *VectorDBManager) Export(ctx context.Context) error {
	if m.collection == nil {
		return fmt.Errorf("collection is required")
	}
	return m.exportFrom(m.db, m.collection.Name)
}

// exportFrom writes collection of db to a temporary file and renames it over
// the export file, so a failed write keeps the previous export
func (m *VectorDBManager) exportFrom(db *chromem.DB, collection string) error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if m.dbPath == "" {
		return fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(m.dbPath, 0o755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}

	log.Debug().Str("collection", collection).Str("file", m.filePath).Bool("compress", m.compress).Msg("Exporting collection")
	tmp := m.filePath + ".tmp"
	if err := db.ExportToFile(tmp, m.compress, m.encryptionKey, collection); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to export database: %w", err)
	}
	if err := os.Rename(tmp, m.filePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// import from file
func (m *VectorDBManager) Import(ctx context.Context) error {
	err := m.db.ImportFromFile(m.filePath, m.encryptionKey, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	m.collection = m.db.GetCollection(m.collectionName, nil)
	return nil
}
