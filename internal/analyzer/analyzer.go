package analyzer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// pageSize is the number of characters counted as one page when a position
// has to be mapped back to an approximate page number
const pageSize = 3000

const (
	maxSectionContent = 2000
	maxItems          = 20
	maxCitations      = 15
	maxTermContext    = 200
)

var stopwords = toSet(`the a an and or but in on at to for of with by from as is was are were been
be have has had do does did will would could should may might must shall can need
it its this that these those i you he she we they what which who whom where when
why how all each every both few more most other some such no nor not only own same
so than too very just also now here there into through during before after above below
between under again further then once et al fig figure table see using used use based
however therefore thus hence although while since because if whose
about against over up down out off any many`)

func toSet(words string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(words) {
		set[w] = true
	}
	return set
}

// Stats are simple size measures of a document
type Stats struct {
	Words          int `json:"words"`
	Characters     int `json:"characters"`
	Sentences      int `json:"sentences"`
	ReadingMinutes int `json:"reading_minutes"`
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// wordsPerMinute is an average adult reading speed
const wordsPerMinute = 200

func DocumentStats(text string) Stats {
	words := len(strings.Fields(text))
	sentences := 0
	for _, s := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			sentences++
		}
	}
	minutes := (words + wordsPerMinute/2) / wordsPerMinute
	return Stats{
		Words:          words,
		Characters:     len(text),
		Sentences:      sentences,
		ReadingMinutes: max(1, minutes),
	}
}

var wordRe = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)

// Keywords returns the topN most frequent non-stopwords, ties in order of first use
func Keywords(text string, topN int) []string {
	counts := map[string]int{}
	var order []string
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if stopwords[w] {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > topN {
		order = order[:topN]
	}
	return order
}

// Section is a headed part of a paper
type Section struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Page    int    `json:"page"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

var sectionPatterns = []struct {
	pattern string
	title   string
}{
	{`abstract`, "Abstract"},
	{`introduction`, "Introduction"},
	{`related\s*work`, "Related Work"},
	{`background`, "Background"},
	{`literature\s*review`, "Literature Review"},
	{`method(?:ology|s)?`, "Methodology"},
	{`approach`, "Approach"},
	{`experiment(?:s|al)?(?:\s*setup)?`, "Experiments"},
	{`results?`, "Results"},
	{`evaluation`, "Evaluation"},
	{`discussion`, "Discussion"},
	{`analysis`, "Analysis"},
	{`conclusions?`, "Conclusion"},
	{`future\s*work`, "Future Work"},
	{`acknowledge?ments?`, "Acknowledgments"},
	{`references?`, "References"},
	{`appendix`, "Appendix"},
}

var sectionRes = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(sectionPatterns))
	for i, p := range sectionPatterns {
		// a heading is a line holding only the (optionally numbered) title
		out[i] = regexp.MustCompile(`(?im)^[ \t]*(?:[\divx]+\.?[ \t]*)?(` + p.pattern + `)[ \t]*$`)
	}
	return out
}()

// Sections splits raw (uncleaned) text at lines that consist of a known
// heading. Text without headings is returned as one "Full Document" section.
func Sections(text string) []Section {
	type match struct {
		title string
		start int
	}
	var matches []match
	for i, re := range sectionRes {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			matches = append(matches, match{title: sectionPatterns[i].title, start: loc[0]})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].start < matches[j].start })

	if len(matches) == 0 {
		return []Section{{
			ID:      "document",
			Title:   "Full Document",
			Content: truncateBytes(strings.TrimSpace(text), maxSectionContent),
			Page:    1,
			End:     len(text),
		}}
	}

	sections := make([]Section, len(matches))
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1].start
		}
		sections[i] = Section{
			ID:      strings.ReplaceAll(strings.ToLower(m.title), " ", "_"),
			Title:   m.title,
			Content: truncateBytes(strings.TrimSpace(text[m.start:end]), maxSectionContent),
			Page:    pageOf(m.start),
			Start:   m.start,
			End:     end,
		}
	}
	return sections
}

func pageOf(pos int) int {
	return pos/pageSize + 1
}

// truncateBytes cuts s to n bytes on a rune boundary without a marker
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// Excerpt returns up to radius bytes either side of the first case-insensitive
// occurrence of needle, or "" when text does not contain it
func Excerpt(text, needle string, radius int) string {
	if needle == "" {
		return ""
	}
	loc := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(needle)).FindStringIndex(text)
	if loc == nil {
		return ""
	}
	start := max(0, loc[0]-radius)
	for start > 0 && !isRuneStart(text[start]) {
		start--
	}
	end := min(len(text), loc[1]+radius)
	for end < len(text) && !isRuneStart(text[end]) {
		end++
	}
	return strings.TrimSpace(text[start:end])
}

// Term is a technical term that may need explaining
type Term struct {
	Term       string `json:"term"`
	Definition string `json:"definition,omitempty"`
	Frequency  int    `json:"frequency"`
	Context    string `json:"context"`
}

var technicalTerms = []string{
	"ablation study", "accuracy", "activation function", "adam", "attention",
	"backpropagation", "baseline", "batch normalization", "batch size", "benchmark",
	"bert", "bleu", "case study", "classification", "clustering", "cnn", "contextual",
	"convolution", "corpus", "cross-entropy", "decoder", "deep learning", "dimension",
	"dropout", "embedding", "empirical", "encoder", "epoch", "f1 score", "feature",
	"fine-tuning", "gan", "generation", "gpt", "gradient descent", "hyperparameter",
	"inference", "kernel", "kl divergence", "latent", "layer normalization",
	"learning rate", "loss function", "lstm", "machine learning", "mae", "momentum",
	"mse", "multi-head attention", "neural network", "nlp", "optimization",
	"overfitting", "pooling", "positional encoding", "pre-training", "precision",
	"recall", "regression", "regularization", "reinforcement", "relu", "representation",
	"retrieval", "rnn", "scheduler", "segmentation", "self-attention", "semantic",
	"semi-supervised", "sgd", "sigmoid", "softmax", "sota", "state-of-the-art", "stride",
	"summarization", "supervised", "syntactic", "test set", "tokenization", "training",
	"transfer learning", "transformer", "translation", "underfitting", "unsupervised",
	"vae", "validation", "vocabulary",
}

var termRes = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(technicalTerms))
	for _, t := range technicalTerms {
		out[t] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(t) + `\b`)
	}
	return out
}()

var (
	acronymRe      = regexp.MustCompile(`\b[A-Z]{2,6}\b`)
	sentenceEndRe  = regexp.MustCompile(`[.!?]\s+`)
	acronymIgnored = toSet("THE AND FOR WITH FROM THIS THAT EACH")
)

// maxAcronyms bounds how many of the most frequent acronyms are considered
const maxAcronyms = 10

// TechnicalTerms finds known technical vocabulary and frequent acronyms,
// most frequent first, each with the first sentence that uses it
func TechnicalTerms(text string, topN int) []Term {
	cleaned := NormalizePDFText(text)
	lower := strings.ToLower(cleaned)

	type count struct {
		term string
		n    int
		re   *regexp.Regexp
	}
	var counts []count
	for _, t := range technicalTerms {
		if n := len(termRes[t].FindAllStringIndex(lower, -1)); n > 0 {
			counts = append(counts, count{term: t, n: n, re: termRes[t]})
		}
	}

	acronyms := map[string]int{}
	var order []string
	for _, a := range acronymRe.FindAllString(cleaned, -1) {
		if acronyms[a] == 0 {
			order = append(order, a)
		}
		acronyms[a]++
	}
	sort.SliceStable(order, func(i, j int) bool { return acronyms[order[i]] > acronyms[order[j]] })
	if len(order) > maxAcronyms {
		order = order[:maxAcronyms]
	}
	for _, a := range order {
		if acronymIgnored[a] || termRes[strings.ToLower(a)] != nil {
			continue
		}
		counts = append(counts, count{term: a, n: acronyms[a], re: regexp.MustCompile(`\b` + a + `\b`)})
	}

	sort.SliceStable(counts, func(i, j int) bool { return counts[i].n > counts[j].n })
	if len(counts) > topN {
		counts = counts[:topN]
	}

	sentences := splitSentences(cleaned)
	terms := make([]Term, len(counts))
	for i, c := range counts {
		name := c.term
		if strings.ToLower(name) == name {
			name = titleCase(name)
		}
		terms[i] = Term{
			Term:      name,
			Frequency: c.n,
			Context:   termContext(sentences, c.re),
		}
	}
	return terms
}

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		out = append(out, strings.TrimSpace(text[last:loc[0]+1]))
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func termContext(sentences []string, re *regexp.Regexp) string {
	for _, s := range sentences {
		if len(s) <= 20 || !re.MatchString(s) {
			continue
		}
		if first := []rune(s)[0]; !unicode.IsUpper(first) {
			continue
		}
		if len(s) <= maxTermContext {
			return s
		}
		cut := truncateBytes(s, maxTermContext)
		if i := strings.LastIndex(cut, " "); i > 150 {
			return cut[:i] + "..."
		}
		return cut
	}
	return "Term found in document"
}

// titleCase upper-cases every letter that follows a non-letter
func titleCase(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if i == 0 || !unicode.IsLetter(runes[i-1]) {
			runes[i] = unicode.ToUpper(r)
		}
	}
	return string(runes)
}

var (
	markupWordRe  = regexp.MustCompile(`>[A-Za-z]+<`)
	controlRe     = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f-\x{9f}]`)
	spaceRe       = regexp.MustCompile(`\s+`)
	strayAngleRe  = regexp.MustCompile(`\s[<>]\s`)
	shortMarkupRe = regexp.MustCompile(`<[^>]{0,3}>`)

	ligatures = strings.NewReplacer(
		"ﬁ", "fi", "ﬂ", "fl", "ﬀ", "ff", "ﬃ", "ffi", "ﬄ", "ffl", "ﬅ", "st", "ﬆ", "st",
		"—", "-", "–", "-", "“", `"`, "”", `"`, "‘", "'", "’", "'", "…", "...", "•", "-",
	)
)

// NormalizePDFText repairs common PDF extraction artifacts: ligatures, smart
// punctuation, control characters and stray markup
func NormalizePDFText(text string) string {
	if text == "" {
		return ""
	}
	text = markupWordRe.ReplaceAllString(text, "")
	text = controlRe.ReplaceAllString(text, "")
	text = ligatures.Replace(text)
	text = spaceRe.ReplaceAllString(text, " ")
	text = strayAngleRe.ReplaceAllString(text, " ")
	text = shortMarkupRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// ItemType distinguishes figures, tables and equations
type ItemType string

const (
	ItemFigure   ItemType = "figure"
	ItemTable    ItemType = "table"
	ItemEquation ItemType = "equation"
)

// Item is a figure, table or equation referenced in a paper
type Item struct {
	ID      int      `json:"id"`
	Type    ItemType `json:"type"`
	Title   string   `json:"title"`
	Caption string   `json:"caption"`
	Page    int      `json:"page"`
	Content string   `json:"content"`
}

var (
	figureRe    = regexp.MustCompile(`(?i)\b(?:figure|fig\.?)[ \t]*(\d+)(?:[:.]?[ \t]*([^\n]+))?`)
	tableRe     = regexp.MustCompile(`(?i)\btable[ \t]*(\d+)(?:[:.]?[ \t]*([^\n]+))?`)
	equationRes = []*regexp.Regexp{
		regexp.MustCompile(`(?:Equation|Eq\.?)\s*[(\[]?(\d+)[)\]]?`),
		regexp.MustCompile(`\$\$([^$]+)\$\$`),
		regexp.MustCompile(`\\\[([^\]]+)\\\]`),
	}
)

const maxCaption = 100

// Items lists figures and tables (once per number, first mention) followed by
// equations, at most 20 in total
func Items(text string) []Item {
	var items []Item
	add := func(it Item) {
		it.ID = len(items) + 1
		items = append(items, it)
	}

	for _, kind := range []struct {
		re    *regexp.Regexp
		typ   ItemType
		label string
	}{
		{figureRe, ItemFigure, "Figure"},
		{tableRe, ItemTable, "Table"},
	} {
		seen := map[string]bool{}
		for _, m := range kind.re.FindAllStringSubmatchIndex(text, -1) {
			num := text[m[2]:m[3]]
			if seen[num] {
				continue
			}
			seen[num] = true
			title := fmt.Sprintf("%s %s", kind.label, num)
			caption := title
			if m[4] >= 0 {
				if c := strings.TrimSpace(text[m[4]:m[5]]); c != "" {
					caption = truncateBytes(c, maxCaption)
				}
			}
			add(Item{Type: kind.typ, Title: title, Caption: caption, Page: pageOf(m[0]), Content: text[m[0]:m[1]]})
		}
	}

	for _, re := range equationRes {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			add(Item{
				Type:    ItemEquation,
				Title:   fmt.Sprintf("Equation %d", len(items)+1),
				Caption: "Mathematical expression",
				Page:    pageOf(m[0]),
				Content: truncateBytes(text[m[2]:m[3]], 200),
			})
		}
	}

	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

// Citation is an author-year reference found in the text
type Citation struct {
	ID         int    `json:"id"`
	Authors    string `json:"authors"`
	Year       string `json:"year"`
	Title      string `json:"title,omitempty"`
	CitedCount int    `json:"cited_count"`
}

var citationRes = []*regexp.Regexp{
	regexp.MustCompile(`\[([A-Z][a-z]+(?:\s+et\s+al\.?)?),?\s*(\d{4})\]`),
	regexp.MustCompile(`\(([A-Z][a-z]+(?:\s+et\s+al\.?)?),?\s*(\d{4})\)`),
	regexp.MustCompile(`([A-Z][a-z]+\s+et\s+al\.?)\s*\((\d{4})\)`),
}

// Citations counts author-year citations, most cited first
func Citations(text string) []Citation {
	counts := map[string]*Citation{}
	var order []string
	for _, re := range citationRes {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			key := m[1] + "_" + m[2]
			c, ok := counts[key]
			if !ok {
				c = &Citation{Authors: m[1], Year: m[2]}
				counts[key] = c
				order = append(order, key)
			}
			c.CitedCount++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]].CitedCount > counts[order[j]].CitedCount })
	if len(order) > maxCitations {
		order = order[:maxCitations]
	}

	out := make([]Citation, len(order))
	for i, key := range order {
		out[i] = *counts[key]
		out[i].ID = i + 1
	}
	return out
}

// Analysis is the deterministic part of a paper analysis
type Analysis struct {
	Stats     Stats      `json:"stats"`
	Keywords  []string   `json:"keywords"`
	Sections  []Section  `json:"sections"`
	Terms     []Term     `json:"terms"`
	Items     []Item     `json:"items"`
	Citations []Citation `json:"citations"`
}

const (
	defaultKeywords = 15
	defaultTerms    = 20
)

// Analyze runs every extractor over the raw text of a paper
func Analyze(text string) *Analysis {
	return &Analysis{
		Stats:     DocumentStats(text),
		Keywords:  Keywords(text, defaultKeywords),
		Sections:  Sections(text),
		Terms:     TechnicalTerms(text, defaultTerms),
		Items:     Items(text),
		Citations: Citations(text),
	}
}
