package models

const (
	ContextSeparator = "\n---\n"
	ThinkTag         = `(?s)<think>.*?</think>`

	// NotFoundMessage replaces answers too short to be informative
	NotFoundMessage = "I couldn't find information about that in the uploaded documents. Try rephrasing the question or asking about a different topic."

	ApplicationName = "paper-rag"
)

// DefaultSectionMarkers are the academic headings the chunker prefers to split before
var DefaultSectionMarkers = []string{
	"Abstract",
	"Introduction",
	"Methods",
	"Methodology",
	"Results",
	"Discussion",
	"Conclusion",
}

// ExplanationLevel controls how answers and section summaries are pitched
type ExplanationLevel string

const (
	LevelBrief    ExplanationLevel = "brief"
	LevelDetailed ExplanationLevel = "detailed"
	LevelExpert   ExplanationLevel = "expert"
)

// Instruction returns the prompt suffix for the level, falling back to detailed
func (l ExplanationLevel) Instruction() string {
	switch l {
	case LevelBrief:
		return "Keep the answer brief: one or two sentences."
	case LevelExpert:
		return "Answer at an expert level with technical depth and precise terminology."
	default:
		return "Give a detailed answer that covers the main points."
	}
}

// SummaryInstruction returns the section-summary instruction for the level
func (l ExplanationLevel) SummaryInstruction() string {
	switch l {
	case LevelBrief:
		return "Provide a 1-sentence summary suitable for quick skimming."
	case LevelExpert:
		return "Provide a detailed technical summary with key findings and implications."
	default:
		return "Provide a 2-3 sentence summary covering the main points."
	}
}

var (
	ContextPromptTemplate = `<document>
%s
</document>
Here is the chunk we want to situate within the whole document
<chunk>
%s
</chunk>
Please give a short succinct context to situate this chunk within the overall document for the purposes of improving search retrieval of the chunk. Answer only with the succinct context and nothing else.
`

	CondensePromptTemplate = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question.

Chat History:
%s
Follow Up Input: %s
Standalone question:`

	AnswerSystemPrompt = `You are a research assistant answering questions about uploaded research papers. Use only the provided context. If the answer is not in the context, say you don't know.`

	AnswerPromptTemplate = `Context:
%s

Question: %s

%s`

	SummaryPromptTemplate = `Analyze this document and provide a brief summary in 2-3 sentences.
Focus on the main topic and key points.

Document:
%s

Summary:`

	QuestionsPromptTemplate = `Based on this document, suggest 5 insightful questions that a reader might want to ask.
Make the questions specific to the content.

Document:
%s

Return only the questions, one per line, without numbering:`

	TermPromptTemplate = `Define the following technical term in 1-2 sentences.
Keep it simple but accurate for someone reading a research paper.

Term: %s
Context from paper: %s

Definition:`

	EquationPromptTemplate = `Explain this equation from a research paper.

Equation: %s
Context: %s

Provide:
1. A plain English explanation of what this equation does
2. Definition of each variable/symbol
3. Step-by-step breakdown

Format as:
EXPLANATION: [1-2 sentence explanation]
VARIABLES:
- [variable]: [meaning]
STEPS:
1. [step]
2. [step]
`

	SectionSummaryPromptTemplate = `Summarize this section from a research paper.

Section: %s
Content: %s

%s

Summary:`

	PrerequisitesPromptTemplate = `Based on this research paper excerpt, identify the prerequisite knowledge a reader should have to fully understand it.

Paper excerpt:
%s

List 5-7 prerequisite topics or concepts (one per line, no numbering):`

	TakeawaysPromptTemplate = `Extract the key takeaways from this research paper.

Paper excerpt:
%s

List 5 key takeaways or main findings (one per line, no numbering):`
)
