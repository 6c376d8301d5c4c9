package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-rag/internal/config"
	"paper-rag/internal/models"
	"paper-rag/internal/session"
)

type fakeStore struct {
	chunks   []models.Chunk
	buildErr error
	queryErr error
}

func (f *fakeStore) Build(ctx context.Context, chunks []models.Chunk) error {
	if f.buildErr != nil {
		return f.buildErr
	}
	f.chunks = chunks
	return nil
}

func (f *fakeStore) Query(ctx context.Context, question string, k int) ([]models.SearchResult, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []models.SearchResult
	for _, c := range f.chunks {
		if len(out) == k {
			break
		}
		out = append(out, models.SearchResult{Chunk: c, Score: 0.9})
	}
	return out, nil
}

func (f *fakeStore) Reset(ctx context.Context) error {
	f.chunks = nil
	return nil
}

func (f *fakeStore) Count() int   { return len(f.chunks) }
func (f *fakeStore) Close() error { return nil }

type fakeChat struct {
	answer string
	err    error
	calls  int
}

func (f *fakeChat) Chat(ctx context.Context, messages []models.Message) (string, error) {
	f.calls++
	return f.answer, f.err
}

const paperText = `Abstract We study attention. Contact: author@uni.edu
Figure 1: model overview
Introduction Attention lets models relate distant tokens. Methods We train on a large corpus.`

func newService(t *testing.T, store *fakeStore, chat *fakeChat) (*Service, *session.Session) {
	t.Helper()
	cfg := config.Default().RAG
	svc, err := NewService(&cfg, store, chat)
	require.NoError(t, err)
	sess, err := session.New(models.LevelDetailed)
	require.NoError(t, err)
	return svc, sess
}

func TestIngestSkipsUnreadableFiles(t *testing.T) {
	store := &fakeStore{}
	svc, sess := newService(t, store, &fakeChat{})

	report, err := svc.Ingest(context.Background(), sess, []Upload{
		{Filename: "paper.txt", Data: []byte(paperText)},
		{Filename: "broken.pdf", Data: []byte("%PDF-1.4 garbage")},
		{Filename: "notes.exe", Data: []byte("MZ")},
		{Filename: "paper.txt", Data: []byte(paperText)},
	})
	require.NoError(t, err)

	require.Len(t, report.Processed, 1)
	assert.Equal(t, "paper.txt", report.Processed[0].Filename)
	assert.Positive(t, report.Processed[0].Chunks)
	assert.Positive(t, report.Processed[0].Stats.ReductionPercent)
	require.Len(t, report.Failed, 3)
	assert.Contains(t, report.Failed[2].Error, "duplicate")
	assert.Equal(t, report.TotalChunks, len(store.chunks))

	assert.True(t, sess.HasIndex())
	require.Len(t, sess.Documents(), 1)
	for _, c := range store.chunks {
		assert.NotContains(t, c.Content, "author@uni.edu")
		assert.NotContains(t, c.Content, "Figure 1")
		assert.Equal(t, "paper.txt", c.Source)
	}
}

func TestIngestNoContent(t *testing.T) {
	svc, sess := newService(t, &fakeStore{}, &fakeChat{})

	report, err := svc.Ingest(context.Background(), sess, []Upload{
		{Filename: "empty.txt", Data: []byte("   \n  ")},
		{Filename: "broken.pdf", Data: []byte("not a pdf")},
	})
	assert.ErrorIs(t, err, ErrNoContent)
	assert.Len(t, report.Failed, 2)
	assert.False(t, sess.HasIndex())

	_, err = svc.Ingest(context.Background(), sess, nil)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestIngestEmbeddingFailureKeepsSession(t *testing.T) {
	store := &fakeStore{}
	svc, sess := newService(t, store, &fakeChat{answer: strings.Repeat("answer ", 10)})
	ctx := context.Background()

	_, err := svc.Ingest(ctx, sess, []Upload{{Filename: "paper.txt", Data: []byte(paperText)}})
	require.NoError(t, err)
	_, err = svc.Ask(ctx, sess, "What do they study?")
	require.NoError(t, err)

	store.buildErr = errors.New("embedding quota exceeded")
	_, err = svc.Ingest(ctx, sess, []Upload{{Filename: "other.txt", Data: []byte("Results were good.")}})
	assert.ErrorIs(t, err, ErrServiceUnavailable)

	assert.True(t, sess.HasIndex())
	assert.Equal(t, "paper.txt", sess.Documents()[0].Filename)
	assert.Len(t, sess.History(), 1)
}

func TestIngestContextualChunks(t *testing.T) {
	store := &fakeStore{}
	chat := &fakeChat{answer: "From a paper about attention."}
	cfg := config.Default().RAG
	cfg.ContextualChunks = true
	svc, err := NewService(&cfg, store, chat)
	require.NoError(t, err)
	sess, err := session.New(models.LevelDetailed)
	require.NoError(t, err)

	_, err = svc.Ingest(context.Background(), sess, []Upload{{Filename: "paper.txt", Data: []byte(paperText)}})
	require.NoError(t, err)
	assert.Equal(t, len(store.chunks), chat.calls)
	for _, c := range store.chunks {
		assert.Equal(t, "From a paper about attention.", c.Context)
	}

	chat.err = errors.New("timeout")
	_, err = svc.Ingest(context.Background(), sess, []Upload{{Filename: "paper.txt", Data: []byte(paperText)}})
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestAsk(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	chat := &fakeChat{answer: "The paper studies attention mechanisms in depth."}
	svc, sess := newService(t, store, chat)

	_, err := svc.Ask(ctx, sess, "anything?")
	assert.ErrorIs(t, err, ErrNoIndex)

	_, err = svc.Ingest(ctx, sess, []Upload{{Filename: "paper.txt", Data: []byte(paperText)}})
	require.NoError(t, err)

	turn, err := svc.Ask(ctx, sess, "What do they study?")
	require.NoError(t, err)
	assert.True(t, turn.Relevant)
	assert.Equal(t, chat.answer, turn.Answer)
	assert.NotEmpty(t, turn.Sources)
	assert.Len(t, sess.History(), 1)

	chat.answer = "No."
	turn, err = svc.Ask(ctx, sess, "Who funded it?")
	require.NoError(t, err)
	assert.False(t, turn.Relevant)
	assert.Equal(t, models.NotFoundMessage, turn.Answer)
	assert.Len(t, sess.History(), 2)

	_, err = svc.Ask(ctx, sess, " ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	chat.err = errors.New("503 from provider")
	_, err = svc.Ask(ctx, sess, "Again?")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Len(t, sess.History(), 2)
}

func TestClearAndReset(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	svc, sess := newService(t, store, &fakeChat{answer: strings.Repeat("long answer ", 5)})

	_, err := svc.Ingest(ctx, sess, []Upload{{Filename: "paper.txt", Data: []byte(paperText)}})
	require.NoError(t, err)
	_, err = svc.Ask(ctx, sess, "What?")
	require.NoError(t, err)

	svc.ClearHistory(sess)
	assert.Empty(t, sess.History())
	assert.True(t, sess.HasIndex())

	require.NoError(t, svc.Reset(ctx, sess))
	assert.False(t, sess.HasIndex())
	assert.Zero(t, store.Count())
	assert.False(t, svc.Restore(sess))
}

func TestRestore(t *testing.T) {
	store := &fakeStore{chunks: []models.Chunk{{ID: "a-1", Content: "persisted"}}}
	svc, sess := newService(t, store, &fakeChat{})
	assert.True(t, svc.Restore(sess))
	assert.True(t, sess.HasIndex())
}
