package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"paper-rag/internal/chunker"
	"paper-rag/internal/cleaner"
	"paper-rag/internal/config"
	"paper-rag/internal/conversation"
	"paper-rag/internal/embedding"
	"paper-rag/internal/llmservice"
	"paper-rag/internal/models"
	"paper-rag/internal/parser"
	"paper-rag/internal/session"
	"paper-rag/internal/vectorstore"
)

var (
	ErrNoContent = errors.New("no content found")
	// ErrServiceUnavailable wraps embedding and chat failures. The operation
	// can be retried as is; nothing retries automatically.
	ErrServiceUnavailable = errors.New("external service unavailable")
	ErrNoIndex            = conversation.ErrNoIndex
	ErrEmptyQuestion      = conversation.ErrEmptyQuestion
)

// Upload is one file handed to Ingest
type Upload struct {
	Filename string
	Data     []byte
}

// FileResult is the outcome of ingesting one upload
type FileResult struct {
	Filename string        `json:"filename"`
	Pages    int           `json:"pages,omitempty"`
	Chunks   int           `json:"chunks,omitempty"`
	Stats    cleaner.Stats `json:"stats"`
	Error    string        `json:"error,omitempty"`
}

// IngestReport summarises an Ingest call
type IngestReport struct {
	Processed   []FileResult  `json:"processed"`
	Failed      []FileResult  `json:"failed"`
	TotalChunks int           `json:"total_chunks"`
	Duration    time.Duration `json:"duration"`
}

type Service struct {
	cfg          config.RAGConfig
	cleaner      *cleaner.Cleaner
	chunker      *chunker.Chunker
	store        vectorstore.Store
	chat         llmservice.ChatModel
	conversation *conversation.Manager
}

func NewService(cfg *config.RAGConfig, store vectorstore.Store, chat llmservice.ChatModel) (*Service, error) {
	cl, err := cleaner.New(cfg.ExtraCleaningPatterns...)
	if err != nil {
		return nil, fmt.Errorf("failed to build cleaner: %w", err)
	}
	return &Service{
		cfg:          *cfg,
		cleaner:      cl,
		chunker:      chunker.New(cfg.ChunkSize, cfg.ChunkOverlap, cfg.SectionMarkers),
		store:        store,
		chat:         chat,
		conversation: conversation.NewManager(chat, cfg.TopK, cfg.MinResponseLength),
	}, nil
}

// Restore attaches a previously persisted index to sess when the store
// already holds chunks
func (s *Service) Restore(sess *session.Session) bool {
	n := s.store.Count()
	if n == 0 {
		return false
	}
	sess.Attach(s.store, nil, nil)
	log.Info().Int("chunks", n).Msg("Restored existing index")
	return true
}

// Ingest extracts, cleans and chunks every upload, then rebuilds the index from
// all chunks. A file that cannot be read is reported and skipped. The session
// keeps its previous index unless the new one was built successfully.
func (s *Service) Ingest(ctx context.Context, sess *session.Session, uploads []Upload) (*IngestReport, error) {
	start := time.Now()
	report := &IngestReport{}

	var (
		docs   []*models.Document
		chunks []models.Chunk
		seen   = map[string]bool{}
	)
	for _, up := range uploads {
		if seen[up.Filename] {
			report.Failed = append(report.Failed, FileResult{Filename: up.Filename, Error: "duplicate filename"})
			continue
		}
		seen[up.Filename] = true

		doc, fileChunks, res, err := s.processFile(up)
		if err != nil {
			log.Warn().Err(err).Str("filename", up.Filename).Msg("Skipping file")
			res.Error = err.Error()
			report.Failed = append(report.Failed, res)
			continue
		}
		docs = append(docs, doc)
		chunks = append(chunks, fileChunks...)
		report.Processed = append(report.Processed, res)
	}
	report.TotalChunks = len(chunks)

	if len(chunks) == 0 {
		report.Duration = time.Since(start)
		return report, ErrNoContent
	}

	if s.cfg.ContextualChunks && s.chat != nil {
		if err := s.addContext(ctx, docs, chunks); err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
	}

	if err := s.store.Build(ctx, chunks); err != nil {
		report.Duration = time.Since(start)
		return report, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	sess.Attach(s.store, docs, chunks)

	report.Duration = time.Since(start)
	log.Info().
		Int("processed", len(report.Processed)).
		Int("failed", len(report.Failed)).
		Int("chunks", report.TotalChunks).
		Dur("duration", report.Duration).
		Msg("Ingest complete")
	return report, nil
}

func (s *Service) processFile(up Upload) (*models.Document, []models.Chunk, FileResult, error) {
	res := FileResult{Filename: up.Filename}
	doc, err := parser.Extract(up.Filename, up.Data)
	if err != nil {
		return nil, nil, res, err
	}
	res.Pages = len(doc.Pages)

	raw := doc.RawText()
	res.Stats = s.cleaner.Stats(raw)
	chunks := s.chunker.Chunk(doc.Filename, s.cleaner.Clean(raw))
	if len(chunks) == 0 {
		return nil, nil, res, ErrNoContent
	}
	res.Chunks = len(chunks)
	return doc, chunks, res, nil
}

func (s *Service) addContext(ctx context.Context, docs []*models.Document, chunks []models.Chunk) error {
	texts := make(map[string]string, len(docs))
	for _, d := range docs {
		texts[d.Filename] = s.cleaner.Clean(d.RawText())
	}
	for i := range chunks {
		c, err := embedding.GenerateContext(ctx, s.chat, texts[chunks[i].Source], chunks[i].Content)
		if err != nil {
			return err
		}
		chunks[i].Context = c
	}
	return nil
}

// Ask answers question against the session index and records the turn.
// On failure the history is left unchanged.
func (s *Service) Ask(ctx context.Context, sess *session.Session, question string) (models.Turn, error) {
	if !sess.HasIndex() {
		return models.Turn{}, ErrNoIndex
	}
	turn, err := s.conversation.Ask(ctx, sess.Index(), question, sess.History(), conversation.WithLevel(sess.Level))
	if err != nil {
		if errors.Is(err, ErrNoIndex) || errors.Is(err, ErrEmptyQuestion) {
			return models.Turn{}, err
		}
		return models.Turn{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	sess.AddTurn(turn)
	return turn, nil
}

func (s *Service) ClearHistory(sess *session.Session) {
	sess.ClearHistory()
}

func (s *Service) Reset(ctx context.Context, sess *session.Session) error {
	return sess.Reset(ctx)
}
