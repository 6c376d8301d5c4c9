package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"paper-rag/internal/models"
)

const (
	DefaultChunkSize = 1500
)

// Chunker splits cleaned text into bounded segments. Sizes are in bytes,
// which equals characters for cleaned (ASCII) text.
type Chunker struct {
	MaxSize int
	// Overlap is the number of trailing bytes of the previous chunk prepended
	// to a chunk's Content. Body never overlaps.
	Overlap int

	markers *regexp.Regexp
}

// New builds a chunker preferring to split before the given section markers.
// An empty marker list disables section detection.
func New(maxSize, overlap int, sectionMarkers []string) *Chunker {
	if overlap >= maxSize {
		overlap = maxSize / 2
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Chunker{
		MaxSize: maxSize,
		Overlap: overlap,
		markers: markerRegex(sectionMarkers),
	}
}

// a marker counts when it starts the text, a line or a sentence, optionally
// numbered ("2. Methods", "IV. Results")
func markerRegex(markers []string) *regexp.Regexp {
	var quoted []string
	for _, m := range markers {
		m = strings.TrimSpace(m)
		if m != "" {
			quoted = append(quoted, regexp.QuoteMeta(m))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)(?:^|\n|[.!?:]\s+)((?:\d+(?:\.\d+)*\.?\s+|[ivx]+\.\s+)?(` + strings.Join(quoted, "|") + `))\b`)
}

type marker struct {
	pos  int
	name string
}

func (c *Chunker) findMarkers(text string) []marker {
	if c.markers == nil {
		return nil
	}
	var out []marker
	for _, m := range c.markers.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, marker{pos: m[2], name: sectionTitle(text[m[4]:m[5]])})
	}
	return out
}

func sectionTitle(s string) string {
	s = strings.ToLower(s)
	r, size := utf8.DecodeRuneInString(s)
	return strings.ToUpper(string(r)) + s[size:]
}

// Split returns chunks of at most MaxSize whose concatenation equals text.
// Cut points are chosen in order of preference: the last section marker in
// the window, a paragraph break, a sentence end, a space, and finally a hard
// cut at MaxSize.
func (c *Chunker) Split(text string) []string {
	spans := c.spans(text, c.findMarkers(text))
	if len(spans) == 0 {
		return nil
	}
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = text[s[0]:s[1]]
	}
	return out
}

func (c *Chunker) spans(text string, markers []marker) [][2]int {
	if c.MaxSize <= 0 || text == "" {
		return nil
	}

	var spans [][2]int
	n := len(text)
	start := 0
	mi := 0
	for start < n {
		if n-start <= c.MaxSize {
			spans = append(spans, [2]int{start, n})
			break
		}
		limit := start + c.MaxSize

		cut := -1
		for mi < len(markers) && markers[mi].pos <= start {
			mi++
		}
		for j := mi; j < len(markers) && markers[j].pos <= limit; j++ {
			cut = markers[j].pos
		}
		if cut < 0 {
			cut = breakPoint(text, start, limit)
		}
		if cut <= start {
			cut = hardCut(text, start, limit)
		}

		spans = append(spans, [2]int{start, cut})
		start = cut
	}
	return spans
}

var sentenceEnd = regexp.MustCompile(`[.!?]["')\]]*\s+`)

// breakPoint finds the best natural break in text[start:limit]. A break in
// the second half of the window is preferred over any break type in the first.
func breakPoint(text string, start, limit int) int {
	window := text[start:limit]
	half := len(window) / 2

	finders := []func(string) int{
		func(w string) int {
			if i := strings.LastIndex(w, "\n\n"); i >= 0 {
				return i + 2
			}
			return -1
		},
		func(w string) int {
			if i := strings.LastIndex(w, "\n"); i >= 0 {
				return i + 1
			}
			return -1
		},
		func(w string) int {
			locs := sentenceEnd.FindAllStringIndex(w, -1)
			if len(locs) == 0 {
				return -1
			}
			return locs[len(locs)-1][1]
		},
		func(w string) int {
			if i := strings.LastIndexAny(w, " \t"); i >= 0 {
				return i + 1
			}
			return -1
		},
	}

	best := -1
	for _, find := range finders {
		i := find(window)
		if i >= half && i > 0 {
			return start + i
		}
		if i > 0 && best < 0 {
			best = i
		}
	}
	if best > 0 {
		return start + best
	}
	return -1
}

// hardCut splits at limit, backing off to a rune boundary when possible
func hardCut(text string, start, limit int) int {
	cut := limit
	for cut > start+1 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	log.Debug().Int("start", start).Int("cut", cut).Msg("No break point in window, hard cut")
	return cut
}

// Chunk splits a document's cleaned text into models.Chunk values carrying
// source, order, detected section and the configured overlap prefix.
func (c *Chunker) Chunk(source, text string) []models.Chunk {
	markers := c.findMarkers(text)
	spans := c.spans(text, markers)

	chunks := make([]models.Chunk, 0, len(spans))
	mi := -1
	for i, s := range spans {
		for mi+1 < len(markers) && markers[mi+1].pos <= s[0] {
			mi++
		}
		section := ""
		if mi >= 0 {
			section = markers[mi].name
		}

		body := text[s[0]:s[1]]
		content := body
		if i > 0 && c.Overlap > 0 {
			content = overlapPrefix(text[spans[i-1][0]:s[0]], c.Overlap) + body
		}
		chunks = append(chunks, models.Chunk{
			ID:      fmt.Sprintf("%s-%d", source, i+1),
			Content: content,
			Body:    body,
			Source:  source,
			ChunkID: i + 1,
			Section: section,
		})
	}

	log.Info().Str("source", source).Int("chunks", len(chunks)).Msg("Created chunks from text")
	return chunks
}

// overlapPrefix returns at most n trailing bytes of prev, starting at a word
// boundary when one exists
func overlapPrefix(prev string, n int) string {
	if len(prev) <= n {
		return prev
	}
	tail := prev[len(prev)-n:]
	if i := strings.IndexAny(tail, " \n\t"); i >= 0 && i+1 < len(tail) {
		return tail[i+1:]
	}
	for len(tail) > 0 && !utf8.RuneStart(tail[0]) {
		tail = tail[1:]
	}
	return tail
}

// Join reassembles chunk bodies into the text they were cut from
func Join(chunks []models.Chunk) string {
	var b strings.Builder
	for _, ch := range chunks {
		b.WriteString(ch.Body)
	}
	return b.String()
}
