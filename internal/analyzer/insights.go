package analyzer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"paper-rag/internal/helper"
	"paper-rag/internal/llmservice"
	"paper-rag/internal/models"
)

// Fallbacks returned when the chat model fails
const (
	SummaryFallback        = "Summary generation failed. Please try again."
	SectionSummaryFallback = "Summary generation failed."
	EquationFallback       = "Failed to generate explanation."
)

var (
	QuestionsFallback = []string{
		"What is the main topic of this document?",
		"What are the key findings?",
		"What methodology was used?",
		"What are the conclusions?",
		"What are the implications?",
	}
	PrerequisitesFallback = []string{
		"Basic understanding of the domain",
		"Familiarity with research methodology",
	}
	TakeawaysFallback = []string{"Unable to extract key takeaways."}
)

// Insights asks the chat model for summaries and explanations of a paper.
// Every method degrades to a fixed fallback when the model fails.
type Insights struct {
	chat llmservice.ChatModel
}

func NewInsights(chat llmservice.ChatModel) *Insights {
	return &Insights{chat: chat}
}

var errNoChatModel = errors.New("no chat model configured")

func (in *Insights) ask(ctx context.Context, prompt string) (string, error) {
	if in == nil || in.chat == nil {
		return "", errNoChatModel
	}
	res, err := in.chat.Chat(ctx, []models.Message{{Role: models.RoleUser, Content: prompt}})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res), nil
}

// Summary returns a 2-3 sentence summary of the start of text
func (in *Insights) Summary(ctx context.Context, text string) string {
	res, err := in.ask(ctx, fmt.Sprintf(models.SummaryPromptTemplate, truncateBytes(text, 4000)))
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate summary")
		return SummaryFallback
	}
	return res
}

// SuggestedQuestions returns up to five questions a reader might ask
func (in *Insights) SuggestedQuestions(ctx context.Context, text string) []string {
	res, err := in.ask(ctx, fmt.Sprintf(models.QuestionsPromptTemplate, truncateBytes(text, 3000)))
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate questions")
		return QuestionsFallback
	}
	return helper.SplitLines(res, 5)
}

// DefineTerm returns a short definition, or "" when none could be generated
func (in *Insights) DefineTerm(ctx context.Context, term, excerpt string) string {
	res, err := in.ask(ctx, fmt.Sprintf(models.TermPromptTemplate, term, truncateBytes(excerpt, 500)))
	if err != nil {
		log.Error().Err(err).Str("term", term).Msg("Failed to generate definition")
		return ""
	}
	return res
}

// EquationExplanation is the parsed answer to an equation explanation request
type EquationExplanation struct {
	Explanation string   `json:"explanation"`
	Variables   []string `json:"variables"`
	Steps       []string `json:"steps"`
}

func (in *Insights) ExplainEquation(ctx context.Context, equation, excerpt string) EquationExplanation {
	res, err := in.ask(ctx, fmt.Sprintf(models.EquationPromptTemplate, equation, truncateBytes(excerpt, 500)))
	if err != nil {
		log.Error().Err(err).Msg("Failed to explain equation")
		return EquationExplanation{Explanation: EquationFallback}
	}
	return parseEquationExplanation(res)
}

var stepRe = regexp.MustCompile(`^\d+\.\s*`)

// parseEquationExplanation reads the EXPLANATION / VARIABLES / STEPS layout
func parseEquationExplanation(content string) EquationExplanation {
	out := EquationExplanation{Variables: []string{}, Steps: []string{}}
	section := ""
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "EXPLANATION:"):
			section = "explanation"
			out.Explanation = strings.TrimSpace(strings.TrimPrefix(line, "EXPLANATION:"))
		case strings.HasPrefix(line, "VARIABLES:"):
			section = "variables"
		case strings.HasPrefix(line, "STEPS:"):
			section = "steps"
		case section == "variables" && strings.HasPrefix(line, "- "):
			out.Variables = append(out.Variables, line[2:])
		case section == "steps" && stepRe.MatchString(line):
			out.Steps = append(out.Steps, stepRe.ReplaceAllString(line, ""))
		}
	}
	return out
}

// SummarizeSection summarises one section at the given explanation level
func (in *Insights) SummarizeSection(ctx context.Context, section Section, level models.ExplanationLevel) string {
	prompt := fmt.Sprintf(models.SectionSummaryPromptTemplate, section.Title, truncateBytes(section.Content, 3000), level.SummaryInstruction())
	res, err := in.ask(ctx, prompt)
	if err != nil {
		log.Error().Err(err).Str("section", section.Title).Msg("Failed to generate section summary")
		return SectionSummaryFallback
	}
	return res
}

// Prerequisites lists up to seven topics a reader should know beforehand
func (in *Insights) Prerequisites(ctx context.Context, text string) []string {
	res, err := in.ask(ctx, fmt.Sprintf(models.PrerequisitesPromptTemplate, truncateBytes(text, 3000)))
	if err != nil {
		log.Error().Err(err).Msg("Failed to get prerequisites")
		return PrerequisitesFallback
	}
	return helper.SplitLines(res, 7)
}

// Takeaways lists up to five main findings
func (in *Insights) Takeaways(ctx context.Context, text string) []string {
	res, err := in.ask(ctx, fmt.Sprintf(models.TakeawaysPromptTemplate, truncateBytes(text, 4000)))
	if err != nil {
		log.Error().Err(err).Msg("Failed to get takeaways")
		return TakeawaysFallback
	}
	return helper.SplitLines(res, 5)
}

// Report combines the deterministic analysis with model-generated insights
type Report struct {
	*Analysis
	Summary            string   `json:"summary"`
	SuggestedQuestions []string `json:"suggested_questions"`
	Prerequisites      []string `json:"prerequisites,omitempty"`
	Takeaways          []string `json:"takeaways,omitempty"`
}

// Report analyses text and, when in has a chat model, adds the generated insights
func (in *Insights) Report(ctx context.Context, text string, withPaperInsights bool) *Report {
	r := &Report{Analysis: Analyze(text)}
	if in == nil || in.chat == nil {
		return r
	}
	r.Summary = in.Summary(ctx, text)
	r.SuggestedQuestions = in.SuggestedQuestions(ctx, text)
	if withPaperInsights {
		r.Prerequisites = in.Prerequisites(ctx, text)
		r.Takeaways = in.Takeaways(ctx, text)
	}
	return r
}
