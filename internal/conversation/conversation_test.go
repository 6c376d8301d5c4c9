package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-rag/internal/models"
)

type scriptedChat struct {
	replies []string
	err     error
	calls   [][]models.Message
}

func (s *scriptedChat) Chat(ctx context.Context, messages []models.Message) (string, error) {
	s.calls = append(s.calls, messages)
	if s.err != nil {
		return "", s.err
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return reply, nil
}

type fakeRetriever struct {
	results  []models.SearchResult
	err      error
	question string
	k        int
}

func (f *fakeRetriever) Query(ctx context.Context, question string, k int) ([]models.SearchResult, error) {
	f.question = question
	f.k = k
	return f.results, f.err
}

func results(n int) []models.SearchResult {
	out := make([]models.SearchResult, n)
	for i := range out {
		out[i] = models.SearchResult{
			Chunk: models.Chunk{ID: "c", Content: strings.Repeat("x", 400), Source: "paper.pdf", ChunkID: i + 1},
			Score: 1 - float32(i)/10,
		}
	}
	return out
}

const longAnswer = "Transformers rely entirely on attention to draw global dependencies."

func TestAskLongAnswerPassesUnchanged(t *testing.T) {
	chat := &scriptedChat{replies: []string{longAnswer}}
	retriever := &fakeRetriever{results: results(4)}
	m := NewManager(chat, 4, 30)

	turn, err := m.Ask(context.Background(), retriever, "What is the transformer?", nil)
	require.NoError(t, err)
	assert.Equal(t, longAnswer, turn.Answer)
	assert.True(t, turn.Relevant)
	assert.Equal(t, "What is the transformer?", turn.Question)
	assert.False(t, turn.AskedAt.IsZero())

	// no history means no condensing call
	require.Len(t, chat.calls, 1)
	assert.Equal(t, "What is the transformer?", retriever.question)
	assert.Equal(t, 4, retriever.k)

	require.Len(t, turn.Sources, MaxSources)
	for _, s := range turn.Sources {
		assert.LessOrEqual(t, len(s.Chunk.Content), SourcePreviewLength+3)
	}
	// retrieved chunks keep their full text in the prompt
	prompt := chat.calls[0][1].Content
	assert.Contains(t, prompt, strings.Repeat("x", 400))
	assert.Equal(t, models.RoleSystem, chat.calls[0][0].Role)
}

func TestAskShortAnswerReplaced(t *testing.T) {
	tests := []struct {
		name     string
		answer   string
		relevant bool
	}{
		{name: "empty", answer: "", relevant: false},
		{name: "short", answer: "I don't know.", relevant: false},
		{name: "think tags stripped first", answer: "<think>" + longAnswer + "</think>No.", relevant: false},
		{name: "exactly at threshold", answer: strings.Repeat("a", 30), relevant: true},
		{name: "long", answer: longAnswer, relevant: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(&scriptedChat{replies: []string{tt.answer}}, 4, 30)
			turn, err := m.Ask(context.Background(), &fakeRetriever{results: results(1)}, "question?", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.relevant, turn.Relevant)
			if tt.relevant {
				assert.Equal(t, tt.answer, turn.Answer)
				assert.NotEmpty(t, turn.Sources)
			} else {
				assert.Equal(t, models.NotFoundMessage, turn.Answer)
				assert.Empty(t, turn.Sources)
			}
		})
	}
}

func TestAskCondensesWithHistory(t *testing.T) {
	chat := &scriptedChat{replies: []string{"What datasets did the transformer paper use?", longAnswer}}
	retriever := &fakeRetriever{results: results(2)}
	m := NewManager(chat, 2, 30)

	history := []models.Turn{{Question: "What is the transformer paper about?", Answer: "Attention models."}}
	turn, err := m.Ask(context.Background(), retriever, "Which datasets did it use?", history, WithLevel(models.LevelBrief))
	require.NoError(t, err)

	require.Len(t, chat.calls, 2)
	condense := chat.calls[0][0].Content
	assert.Contains(t, condense, "Human: What is the transformer paper about?")
	assert.Contains(t, condense, "Assistant: Attention models.")
	assert.Contains(t, condense, "Follow Up Input: Which datasets did it use?")

	assert.Equal(t, "What datasets did the transformer paper use?", retriever.question)
	assert.Contains(t, chat.calls[1][1].Content, models.LevelBrief.Instruction())
	assert.Equal(t, "Which datasets did it use?", turn.Question)
}

func TestAskErrors(t *testing.T) {
	ctx := context.Background()
	m := NewManager(&scriptedChat{replies: []string{longAnswer}}, 4, 30)

	_, err := m.Ask(ctx, nil, "q", nil)
	assert.ErrorIs(t, err, ErrNoIndex)

	_, err = m.Ask(ctx, &fakeRetriever{}, "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	boom := errors.New("embedding api unavailable")
	_, err = m.Ask(ctx, &fakeRetriever{err: boom}, "q", nil)
	assert.ErrorIs(t, err, boom)

	chatErr := errors.New("rate limited")
	failing := NewManager(&scriptedChat{err: chatErr}, 4, 30)
	_, err = failing.Ask(ctx, &fakeRetriever{results: results(1)}, "q", nil)
	assert.ErrorIs(t, err, chatErr)

	_, err = failing.Ask(ctx, &fakeRetriever{results: results(1)}, "q", []models.Turn{{Question: "a", Answer: "b"}})
	assert.ErrorIs(t, err, chatErr)
}
