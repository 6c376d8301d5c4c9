package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-rag/internal/models"
)

type fakeStore struct {
	count    int
	resetErr error
	resets   int
}

func (f *fakeStore) Build(ctx context.Context, chunks []models.Chunk) error {
	f.count = len(chunks)
	return nil
}

func (f *fakeStore) Query(ctx context.Context, question string, k int) ([]models.SearchResult, error) {
	return nil, nil
}

func (f *fakeStore) Reset(ctx context.Context) error {
	f.resets++
	if f.resetErr != nil {
		return f.resetErr
	}
	f.count = 0
	return nil
}

func (f *fakeStore) Count() int   { return f.count }
func (f *fakeStore) Close() error { return nil }

func TestNew(t *testing.T) {
	s, err := New(models.LevelBrief)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, models.LevelBrief, s.Level)
	assert.False(t, s.HasIndex())
	assert.Empty(t, s.History())
}

func TestAttachClearAndReset(t *testing.T) {
	ctx := context.Background()
	s, err := New(models.LevelDetailed)
	require.NoError(t, err)

	s.AddTurn(models.Turn{Question: "stale"})
	store := &fakeStore{count: 2}
	docs := []*models.Document{models.NewDocument("a.pdf", nil)}
	s.Attach(store, docs, []models.Chunk{{ID: "a-1"}, {ID: "a-2"}})

	assert.True(t, s.HasIndex())
	assert.Empty(t, s.History(), "history belongs to the previous index")
	assert.Len(t, s.Documents(), 1)
	assert.Len(t, s.Chunks(), 2)

	s.AddTurn(models.Turn{Question: "q1", Answer: "a1"})
	s.AddTurn(models.Turn{Question: "q2", Answer: "a2"})
	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, "q1", history[0].Question)

	// returned history is a copy
	history[0].Question = "changed"
	assert.Equal(t, "q1", s.History()[0].Question)

	s.ClearHistory()
	assert.Empty(t, s.History())
	assert.True(t, s.HasIndex())

	oldID := s.ID
	require.NoError(t, s.Reset(ctx))
	assert.NotEqual(t, oldID, s.ID)
	assert.False(t, s.HasIndex())
	assert.Empty(t, s.Documents())
	assert.Equal(t, 1, store.resets)
	assert.Equal(t, 0, store.count)
}

func TestResetFailureKeepsState(t *testing.T) {
	s, err := New(models.LevelDetailed)
	require.NoError(t, err)
	store := &fakeStore{count: 1, resetErr: errors.New("database gone")}
	s.Attach(store, nil, []models.Chunk{{ID: "a-1"}})
	s.AddTurn(models.Turn{Question: "q"})

	oldID := s.ID
	assert.Error(t, s.Reset(context.Background()))
	assert.Equal(t, oldID, s.ID)
	assert.True(t, s.HasIndex())
	assert.Len(t, s.History(), 1)
}

func TestResetWithoutIndex(t *testing.T) {
	s, err := New(models.LevelDetailed)
	require.NoError(t, err)
	assert.NoError(t, s.Reset(context.Background()))
}
