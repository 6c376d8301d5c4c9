package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"paper-rag/internal/helper"
	"paper-rag/internal/llmservice"
	"paper-rag/internal/models"
)

const (
	// MaxSources is how many supporting chunks are kept on a turn
	MaxSources = 3
	// SourcePreviewLength bounds the chunk text kept for each source
	SourcePreviewLength = 300
)

var (
	ErrNoIndex       = errors.New("no documents have been processed")
	ErrEmptyQuestion = errors.New("question must not be empty")
)

var thinkRe = regexp.MustCompile(models.ThinkTag)

// Retriever is the part of the index a conversation needs
type Retriever interface {
	Query(ctx context.Context, question string, k int) ([]models.SearchResult, error)
}

// Manager answers questions against an index, carrying the conversation history
type Manager struct {
	chat              llmservice.ChatModel
	topK              int
	minResponseLength int
}

func NewManager(chat llmservice.ChatModel, topK, minResponseLength int) *Manager {
	if topK <= 0 {
		topK = 4
	}
	return &Manager{chat: chat, topK: topK, minResponseLength: minResponseLength}
}

type askOptions struct {
	level models.ExplanationLevel
}

type AskOption func(*askOptions)

// WithLevel appends the explanation-level instruction to the question
func WithLevel(level models.ExplanationLevel) AskOption {
	return func(o *askOptions) {
		o.level = level
	}
}

// Ask condenses question with history into a standalone question, retrieves
// supporting chunks and asks the chat model. Answers shorter than the minimum
// response length are replaced by models.NotFoundMessage and marked not relevant.
// A failure returns an error and no turn.
func (m *Manager) Ask(ctx context.Context, index Retriever, question string, history []models.Turn, opts ...AskOption) (models.Turn, error) {
	if index == nil {
		return models.Turn{}, ErrNoIndex
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Turn{}, ErrEmptyQuestion
	}
	o := askOptions{level: models.LevelDetailed}
	for _, opt := range opts {
		opt(&o)
	}

	standalone, err := m.condense(ctx, question, history)
	if err != nil {
		return models.Turn{}, err
	}

	results, err := index.Query(ctx, standalone, m.topK)
	if err != nil {
		return models.Turn{}, fmt.Errorf("failed to retrieve context: %w", err)
	}

	prompt := fmt.Sprintf(models.AnswerPromptTemplate, buildContext(results), standalone, o.level.Instruction())
	answer, err := m.chat.Chat(ctx, []models.Message{
		{Role: models.RoleSystem, Content: models.AnswerSystemPrompt},
		{Role: models.RoleUser, Content: prompt},
	})
	if err != nil {
		return models.Turn{}, fmt.Errorf("failed to generate answer: %w", err)
	}
	answer = strings.TrimSpace(thinkRe.ReplaceAllString(answer, ""))

	turn := models.Turn{
		Question: question,
		Answer:   answer,
		Relevant: m.IsRelevant(answer),
		AskedAt:  time.Now(),
	}
	if turn.Relevant {
		turn.Sources = previewSources(results)
	} else {
		turn.Answer = models.NotFoundMessage
	}

	log.Debug().
		Str("question", helper.Truncate(question, 80)).
		Int("sources", len(turn.Sources)).
		Bool("relevant", turn.Relevant).
		Msg("Question answered")
	return turn, nil
}

// IsRelevant reports whether answer meets the minimum response length
func (m *Manager) IsRelevant(answer string) bool {
	return utf8.RuneCountInString(answer) >= m.minResponseLength
}

// condense rewrites a follow-up question so it can be answered without the history
func (m *Manager) condense(ctx context.Context, question string, history []models.Turn) (string, error) {
	if len(history) == 0 {
		return question, nil
	}
	prompt := fmt.Sprintf(models.CondensePromptTemplate, formatHistory(history), question)
	res, err := m.chat.Chat(ctx, []models.Message{{Role: models.RoleUser, Content: prompt}})
	if err != nil {
		return "", fmt.Errorf("failed to condense question: %w", err)
	}
	res = strings.TrimSpace(thinkRe.ReplaceAllString(res, ""))
	if res == "" {
		return question, nil
	}
	return res, nil
}

func formatHistory(history []models.Turn) string {
	var sb strings.Builder
	for _, msg := range models.History(history) {
		switch msg.Role {
		case models.RoleUser:
			sb.WriteString("Human: ")
		default:
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func buildContext(results []models.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Chunk.Content
	}
	return strings.Join(parts, models.ContextSeparator)
}

func previewSources(results []models.SearchResult) []models.SearchResult {
	n := min(len(results), MaxSources)
	out := make([]models.SearchResult, n)
	for i := range n {
		out[i] = results[i]
		out[i].Chunk.Content = helper.Truncate(results[i].Chunk.Content, SourcePreviewLength)
	}
	return out
}
