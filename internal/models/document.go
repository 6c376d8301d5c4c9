package models

import (
	"strings"
	"time"
)

// Page is the raw text of one page (or sheet/slide) of an uploaded file
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Document is one uploaded file after extraction. It is not modified afterwards.
type Document struct {
	Filename string `json:"filename"`
	Pages    []Page `json:"pages"`
}

// NewDocument builds a document from its pages in order
func NewDocument(filename string, pages []Page) *Document {
	return &Document{Filename: filename, Pages: pages}
}

// RawText returns the page texts joined by newlines
func (d *Document) RawText() string {
	texts := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n")
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	ID string `json:"id"`
	// Content is what gets embedded: an optional overlap prefix plus Body.
	Content string `json:"content"`
	// Body is the exact slice of the cleaned text owned by this chunk.
	Body    string `json:"-"`
	Source  string `json:"source"`
	ChunkID int    `json:"chunk_id"`
	Section string `json:"section,omitempty"`
	// Context optionally situates the chunk in its document; it is embedded
	// together with Content but never shown as a source.
	Context string `json:"-"`
}

// Len is the character length of the chunk content
func (c Chunk) Len() int {
	return len(c.Content)
}

// EmbeddingText is the text sent to the embedder
func (c Chunk) EmbeddingText() string {
	if c.Context == "" {
		return c.Content
	}
	return c.Context + "\n\n" + c.Content
}

// IndexEntry pairs a chunk with its embedding vector
type IndexEntry struct {
	Chunk     Chunk
	Embedding []float32
}

// SearchResult is a chunk returned by a similarity query
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// Role of a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single provider-neutral chat message
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Turn is one answered question in a session history
type Turn struct {
	Question string         `json:"question"`
	Answer   string         `json:"answer"`
	Sources  []SearchResult `json:"sources,omitempty"`
	Relevant bool           `json:"is_relevant"`
	AskedAt  time.Time      `json:"asked_at"`
}

// History flattens turns into alternating user/assistant messages
func History(turns []Turn) []Message {
	msgs := make([]Message, 0, len(turns)*2)
	for _, t := range turns {
		msgs = append(msgs,
			Message{Role: RoleUser, Content: t.Question},
			Message{Role: RoleAssistant, Content: t.Answer},
		)
	}
	return msgs
}
