package cleaner

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	// an optional contact label is removed with the address
	emailRegex    = regexp.MustCompile(`(?i)(?:\b(?:contact|e-?mail|correspondence|corresponding author)[ \t]*:[ \t]*)?[\w.+-]+@[\w-]+(?:\.[\w-]+)+`)
	captionRegex  = regexp.MustCompile(`(?im)^\s*(?:figure|fig\.?|table)\s*\d+[a-z]?\s*[:.].*$`)
	sourceRegex   = regexp.MustCompile(`(?im)^\s*source:.*$`)
	nonASCIIRegex = regexp.MustCompile(`[^\x00-\x7F]+`)
	spaceRegex    = regexp.MustCompile(`\s+`)
)

// ReferencePatterns strip inline references and markup left over by PDF extraction.
// They are not applied unless passed to New.
var ReferencePatterns = []string{
	`\[[^\]]*\]`,
	`\bSee\s+Figure\s+\d+\b`,
	`\bEq\.\s*\d+\b`,
	`\b(?:Table|Fig)\.\s*\d+\b`,
	`<[^>]+>`,
}

// Cleaner removes noise from extracted text with a fixed, ordered rule set.
// Line rules see the raw lines once; inline rules run on the collapsed text.
type Cleaner struct {
	lineRules   []*regexp.Regexp
	inlineRules []*regexp.Regexp
}

// New compiles the built-in rules plus any extra patterns. Extra patterns run
// before the caption rules and again on the collapsed text.
func New(extraPatterns ...string) (*Cleaner, error) {
	extras := make([]*regexp.Regexp, 0, len(extraPatterns))
	for _, p := range extraPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid cleaning pattern %q: %w", p, err)
		}
		extras = append(extras, re)
	}
	return newCleaner(extras), nil
}

func newCleaner(extras []*regexp.Regexp) *Cleaner {
	// non-ASCII goes first so that a bullet or NBSP cannot hide a caption
	line := []*regexp.Regexp{nonASCIIRegex, emailRegex}
	line = append(line, extras...)
	line = append(line, captionRegex, sourceRegex)

	inline := []*regexp.Regexp{emailRegex}
	inline = append(inline, extras...)
	inline = append(inline, nonASCIIRegex)
	return &Cleaner{lineRules: line, inlineRules: inline}
}

var defaultCleaner = newCleaner(nil)

// Clean applies the default rules
func Clean(raw string) string {
	return defaultCleaner.Clean(raw)
}

// Clean strips emails, caption lines, non-ASCII characters and collapses
// whitespace. Caption and Source: rules only ever see the original lines;
// once the text is a single line they would match the whole document. The
// inline rules are reapplied until the text stops changing so that
// Clean(Clean(x)) == Clean(x) holds even when one removal exposes another match.
func (c *Cleaner) Clean(raw string) string {
	text := raw
	for _, re := range c.lineRules {
		text = re.ReplaceAllString(text, "")
	}
	out := c.pass(text)
	for {
		next := c.pass(out)
		if next == out {
			break
		}
		out = next
	}
	log.Debug().Int("raw_length", len(raw)).Int("cleaned_length", len(out)).Msg("Cleaned text")
	return out
}

func (c *Cleaner) pass(text string) string {
	for _, re := range c.inlineRules {
		text = re.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(spaceRegex.ReplaceAllString(text, " "))
}

// Stats describes the effect of cleaning on a text
type Stats struct {
	OriginalLength   int     `json:"original_length"`
	CleanedLength    int     `json:"cleaned_length"`
	ReductionPercent float64 `json:"reduction_percent"`
	WordCount        int     `json:"word_count"`
}

// Stats cleans raw and reports the size reduction
func (c *Cleaner) Stats(raw string) Stats {
	cleaned := c.Clean(raw)
	s := Stats{
		OriginalLength: len(raw),
		CleanedLength:  len(cleaned),
		WordCount:      len(strings.Fields(cleaned)),
	}
	if len(raw) > 0 {
		s.ReductionPercent = math.Round((1-float64(len(cleaned))/float64(len(raw)))*10000) / 100
	}
	return s
}
