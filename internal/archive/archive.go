package archive

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/timshannon/badgerhold/v4"

	"paper-rag/internal/export"
	"paper-rag/internal/helper"
)

var ErrNotFound = errors.New("transcript not found")

// Archive keeps exported conversations in an embedded badger database
type Archive struct {
	store *badgerhold.Store
}

// Open opens (or creates) the archive at path. An in-memory archive ignores path.
func Open(path string, inMemory bool) (*Archive, error) {
	options := badgerhold.DefaultOptions
	if inMemory {
		options.InMemory = true
	} else {
		if err := helper.CreateFolder(path); err != nil {
			return nil, err
		}
		options.Dir = path
		options.ValueDir = path
	}
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	log.Debug().Str("path", path).Bool("in_memory", inMemory).Msg("Archive opened")
	return &Archive{store: store}, nil
}

// Save stores t, assigning an id when it has none
func (a *Archive) Save(t *export.Transcript) error {
	if t.ID == "" {
		id, err := helper.GenerateUUID()
		if err != nil {
			return err
		}
		t.ID = id
	}
	if err := a.store.Upsert(t.ID, t); err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}
	log.Info().Str("id", t.ID).Int("turns", len(t.Conversations)).Msg("Transcript archived")
	return nil
}

func (a *Archive) Get(id string) (*export.Transcript, error) {
	var t export.Transcript
	if err := a.store.Get(id, &t); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	return &t, nil
}

// List returns archived transcripts, newest first. A limit of 0 returns all.
func (a *Archive) List(limit int) ([]export.Transcript, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("ExportedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	var out []export.Transcript
	if err := a.store.Find(&out, query); err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	return out, nil
}

// BySession returns the transcripts exported from one session
func (a *Archive) BySession(sessionID string) ([]export.Transcript, error) {
	var out []export.Transcript
	if err := a.store.Find(&out, badgerhold.Where("SessionID").Eq(sessionID)); err != nil {
		return nil, fmt.Errorf("failed to find transcripts: %w", err)
	}
	return out, nil
}

func (a *Archive) Delete(id string) error {
	err := a.store.Delete(id, &export.Transcript{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (a *Archive) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
