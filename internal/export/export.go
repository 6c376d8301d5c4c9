package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"paper-rag/internal/models"
)

// Format of an exported conversation
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
)

// ParseFormat accepts a format name or file extension, defaulting to JSON
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "", "json":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// ContentType is the MIME type served for the format
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}

// Transcript is a conversation prepared for export
type Transcript struct {
	ID            string        `json:"id"`
	ExportedAt    time.Time     `json:"exported_at"`
	Application   string        `json:"application"`
	SessionID     string        `json:"session_id"`
	Documents     []string      `json:"documents"`
	Conversations []models.Turn `json:"conversations"`
}

func NewTranscript(sessionID string, documents []string, turns []models.Turn) *Transcript {
	return &Transcript{
		ExportedAt:    time.Now().UTC(),
		Application:   models.ApplicationName,
		SessionID:     sessionID,
		Documents:     documents,
		Conversations: turns,
	}
}

// Filename suggests a download name such as chat_20250102_1504.json
func (t *Transcript) Filename(f Format) string {
	return fmt.Sprintf("chat_%s.%s", t.ExportedAt.Format("20060102_1504"), f)
}

// Render encodes the transcript in the requested format
func Render(t *Transcript, f Format) ([]byte, error) {
	log.Debug().Str("format", string(f)).Int("turns", len(t.Conversations)).Msg("Rendering export")
	switch f {
	case FormatJSON:
		return JSON(t)
	case FormatMarkdown:
		return []byte(Markdown(t)), nil
	case FormatHTML:
		return HTML(t)
	case FormatPDF:
		return PDF(t)
	default:
		return nil, fmt.Errorf("unknown export format %q", f)
	}
}

func JSON(t *Transcript) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// Markdown lays the transcript out as headed question and answer blocks
func Markdown(t *Transcript) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s conversation\n\n", t.Application)
	fmt.Fprintf(&b, "Exported %s\n\n", t.ExportedAt.Format(time.RFC1123))
	if len(t.Documents) > 0 {
		b.WriteString("## Documents\n\n")
		for _, d := range t.Documents {
			fmt.Fprintf(&b, "- %s\n", d)
		}
		b.WriteString("\n")
	}
	for i, turn := range t.Conversations {
		fmt.Fprintf(&b, "## Question %d\n\n%s\n\n", i+1, turn.Question)
		fmt.Fprintf(&b, "**Answer:** %s\n\n", turn.Answer)
		if len(turn.Sources) > 0 {
			b.WriteString("*Sources:*\n\n")
			for _, s := range turn.Sources {
				fmt.Fprintf(&b, "- %s, chunk %d: %s\n", s.Chunk.Source, s.Chunk.ChunkID, oneLine(s.Chunk.Content))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Linkify))

const htmlHead = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>%s conversation</title>
<style>body{font-family:sans-serif;max-width:48rem;margin:2rem auto;line-height:1.5}h2{border-bottom:1px solid #ddd}</style>
</head><body>
`

// HTML renders the markdown transcript as a standalone page
func HTML(t *Transcript) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(Markdown(t)), &body); err != nil {
		return nil, fmt.Errorf("failed to render html: %w", err)
	}
	var out bytes.Buffer
	fmt.Fprintf(&out, htmlHead, t.Application)
	out.Write(body.Bytes())
	out.WriteString("</body></html>\n")
	return out.Bytes(), nil
}
