package aggregate

import (
	"fmt"
	"strings"

	"github.com/kayz/quorum/internal/llm"
)

// DefaultSystemPrompt is sent to the synthesizer when none is configured.
const DefaultSystemPrompt = "You are an expert at reconciling answers from several sources " +
	"into one comprehensive and accurate answer."

// ContradictionsHeading is the heading the synthesizer is asked to use.
const ContradictionsHeading = "## Contradictions"

var synthesisInstructions = []string{
	"Identify what the answers have in common and where they differ.",
	"Where answers contradict each other, say so explicitly.",
	"When sources conflict, prefer the more reliable and more recent information.",
	"Produce one comprehensive, accurate, unified answer.",
	"Add caveats or supplementary notes where the evidence is weak or conflicting.",
}

type section struct {
	title   string
	content string
}

func renderSections(sections []section) string {
	var out strings.Builder
	for i, s := range sections {
		if i > 0 {
			out.WriteString("\n\n")
		}
		if s.title != "" {
			out.WriteString("### ")
			out.WriteString(s.title)
			out.WriteString("\n\n")
		}
		out.WriteString(s.content)
	}
	return out.String()
}

// BuildPrompt assembles the synthesis prompt from the successful answers.
// Each answer is cut to maxChars runes when maxChars > 0.
func BuildPrompt(question, context string, answers []llm.Response, maxChars int) string {
	sections := []section{{title: "Question", content: strings.TrimSpace(question)}}
	if c := strings.TrimSpace(context); c != "" {
		sections = append(sections, section{title: "Reference information", content: c})
	}

	var ab strings.Builder
	ab.WriteString("Below are answers from several AI models.")
	for i, r := range answers {
		ab.WriteString(fmt.Sprintf("\n\n#### Answer %d - %s (%s)\n\n", i+1, r.ProviderID, r.Model))
		ab.WriteString(capRunes(strings.TrimSpace(r.Content), maxChars))
	}
	sections = append(sections, section{title: "Answers", content: ab.String()})

	var tb strings.Builder
	tb.WriteString("Analyze the answers above and write a unified answer. In doing so:\n")
	for i, line := range synthesisInstructions {
		tb.WriteString(fmt.Sprintf("%d. %s\n", i+1, line))
	}
	tb.WriteString("\nEnd with a section titled \"" + ContradictionsHeading + "\" that lists each contradiction " +
		"between the answers as a bullet point, or the single bullet \"- None\" if they agree.")
	sections = append(sections, section{title: "Task", content: tb.String()})

	return renderSections(sections)
}

// capRunes cuts s to n runes and marks the cut.
func capRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "\n\n[... answer truncated ...]"
}
