package llmservice

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"

	"paper-rag/internal/config"
	"paper-rag/internal/models"
)

type fakeLLM struct {
	got     []llms.MessageContent
	opts    llms.CallOptions
	content string
	err     error
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = messages
	for _, o := range options {
		o(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.content}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

var conversation = []models.Message{
	{Role: models.RoleSystem, Content: "be helpful"},
	{Role: models.RoleUser, Content: "what is attention?"},
	{Role: models.RoleAssistant, Content: "a weighting mechanism"},
	{Role: models.RoleUser, Content: "and self-attention?"},
}

func TestLangChainChat(t *testing.T) {
	llm := &fakeLLM{content: "an answer"}
	chat := NewLangChainChat(llm, &config.LLMConfig{Temperature: 0.3, MaxTokens: 256})

	got, err := chat.Chat(context.Background(), conversation)
	require.NoError(t, err)
	assert.Equal(t, "an answer", got)

	require.Len(t, llm.got, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, llm.got[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, llm.got[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, llm.got[2].Role)
	assert.Equal(t, llms.TextContent{Text: "and self-attention?"}, llm.got[3].Parts[0])
	assert.Equal(t, 0.3, llm.opts.Temperature)
	assert.Equal(t, 256, llm.opts.MaxTokens)
}

func TestLangChainChatErrors(t *testing.T) {
	_, err := NewLangChainChat(&fakeLLM{}, &config.LLMConfig{}).Chat(context.Background(), conversation)
	assert.ErrorIs(t, err, ErrEmptyResponse)

	boom := errors.New("rate limited")
	_, err = NewLangChainChat(&fakeLLM{err: boom}, &config.LLMConfig{}).Chat(context.Background(), conversation)
	assert.ErrorIs(t, err, boom)
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem(conversation)
	assert.Equal(t, "be helpful", system)
	assert.Len(t, rest, 3)
	assert.Equal(t, models.RoleUser, rest[0].Role)
}

func TestClaudeParams(t *testing.T) {
	chat := NewClaudeChat(&config.LLMConfig{Model: "claude-3-5-haiku-latest", Key: "test", Temperature: 0.5})
	params := chat.params(conversation)

	assert.Equal(t, anthropic.Model("claude-3-5-haiku-latest"), params.Model)
	assert.Equal(t, int64(defaultClaudeMaxTokens), params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "be helpful", params.System[0].Text)
	require.Len(t, params.Messages, 3)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, params.Messages[1].Role)
	assert.Equal(t, 0.5, params.Temperature.Value)
}

func claudeServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",` +
			`"content":` + content + `,"stop_reason":"end_turn","stop_sequence":null,` +
			`"usage":{"input_tokens":12,"output_tokens":6}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClaudeChatJoinsTextBlocks(t *testing.T) {
	srv := claudeServer(t, `[{"type":"thinking","thinking":"hmm","signature":"sig"},`+
		`{"type":"text","text":"Attention weights "},{"type":"text","text":"every token."}]`)
	chat := NewClaudeChat(&config.LLMConfig{Model: "claude-3-5-haiku-latest", Key: "test", BaseURL: srv.URL})

	got, err := chat.Chat(context.Background(), conversation)
	require.NoError(t, err)
	assert.Equal(t, "Attention weights every token.", got)
}

func TestClaudeChatWithoutText(t *testing.T) {
	srv := claudeServer(t, `[{"type":"thinking","thinking":"hmm","signature":"sig"}]`)
	chat := NewClaudeChat(&config.LLMConfig{Model: "claude-3-5-haiku-latest", Key: "test", BaseURL: srv.URL})

	_, err := chat.Chat(context.Background(), conversation)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGeminiRequest(t *testing.T) {
	chat := &GeminiChat{model: "gemini-2.0-flash", temperature: 0.2}
	contents, cfg := chat.request(conversation)

	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, "and self-attention?", contents[2].Parts[0].Text)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be helpful", cfg.SystemInstruction.Parts[0].Text)
	assert.Equal(t, float32(0.2), *cfg.Temperature)
}

func TestNewChatModel(t *testing.T) {
	ctx := context.Background()

	chat, err := NewChatModel(ctx, &config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini", Key: "sk-test"})
	require.NoError(t, err)
	assert.IsType(t, &LangChainChat{}, chat)

	chat, err = NewChatModel(ctx, &config.LLMConfig{Provider: "ollama", Model: "llama3.2", BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.IsType(t, &LangChainChat{}, chat)

	chat, err = NewChatModel(ctx, &config.LLMConfig{Provider: "anthropic", Model: "claude-3-5-haiku-latest", Key: "k"})
	require.NoError(t, err)
	assert.IsType(t, &ClaudeChat{}, chat)

	_, err = NewChatModel(ctx, &config.LLMConfig{Provider: "huggingface"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
