package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"paper-rag/internal/helper"
	"paper-rag/internal/models"
	"paper-rag/internal/vectorstore"
)

// Session holds everything one user accumulates: uploaded documents, the
// index built from them and the conversation history.
type Session struct {
	ID        string
	CreatedAt time.Time
	Level     models.ExplanationLevel

	documents []*models.Document
	chunks    []models.Chunk
	index     vectorstore.Store
	history   []models.Turn
}

func New(level models.ExplanationLevel) (*Session, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	return &Session{ID: id, CreatedAt: time.Now(), Level: level}, nil
}

// Attach installs a freshly built index together with the documents it came
// from. The history starts over because it referred to the old index.
func (s *Session) Attach(index vectorstore.Store, docs []*models.Document, chunks []models.Chunk) {
	s.index = index
	s.documents = docs
	s.chunks = chunks
	s.history = nil
}

func (s *Session) Index() vectorstore.Store {
	return s.index
}

// HasIndex reports whether questions can be answered
func (s *Session) HasIndex() bool {
	return s.index != nil
}

func (s *Session) Documents() []*models.Document {
	return s.documents
}

func (s *Session) Chunks() []models.Chunk {
	return s.chunks
}

// History returns a copy of the answered turns, oldest first
func (s *Session) History() []models.Turn {
	return append([]models.Turn(nil), s.history...)
}

func (s *Session) AddTurn(t models.Turn) {
	s.history = append(s.history, t)
}

// ClearHistory drops the conversation but keeps documents and index
func (s *Session) ClearHistory() {
	s.history = nil
	log.Info().Str("session", s.ID).Msg("Conversation history cleared")
}

// Reset drops documents, index and history and starts a new session id.
// The index is emptied before it is released.
func (s *Session) Reset(ctx context.Context) error {
	if s.index != nil {
		if err := s.index.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset index: %w", err)
		}
	}
	id, err := helper.GenerateUUID()
	if err != nil {
		return err
	}
	old := s.ID
	s.ID = id
	s.CreatedAt = time.Now()
	s.documents = nil
	s.chunks = nil
	s.index = nil
	s.history = nil
	log.Info().Str("old_session", old).Str("session", s.ID).Msg("Session reset")
	return nil
}
