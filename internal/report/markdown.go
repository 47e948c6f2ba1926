package report

import (
	"fmt"
	"strings"
)

// Markdown renders the full run: answer, comparison, per-provider answers,
// search summary and timings.
func Markdown(doc Document) string {
	var sb strings.Builder

	sb.WriteString("# " + doc.Question + "\n\n")
	sb.WriteString(fmt.Sprintf("- Run: `%s`\n", doc.ID))
	sb.WriteString(fmt.Sprintf("- Started: %s\n", doc.StartedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("- Elapsed: %.2fs\n", doc.ElapsedSeconds))
	sb.WriteString(fmt.Sprintf("- Outcome: %s\n", doc.Outcome))
	if doc.Synthesizer != "" {
		sb.WriteString(fmt.Sprintf("- Synthesizer: %s (%s)\n", doc.Synthesizer, doc.SynthesisModel))
	}
	if doc.SynthesisError != "" {
		sb.WriteString(fmt.Sprintf("- Synthesis error: %s\n", doc.SynthesisError))
	}
	if doc.SynthesisTruncated {
		sb.WriteString("- Warning: the synthesized answer hit the token limit and may be incomplete\n")
	}

	sb.WriteString("\n## Answer\n\n")
	sb.WriteString(strings.TrimSpace(doc.Content))
	sb.WriteString("\n")

	sb.WriteString("\n## Comparison\n\n")
	sb.WriteString(doc.ComparisonTable)
	sb.WriteString("\n")

	if len(doc.Responses) > 0 {
		sb.WriteString("\n## Provider answers\n")
		for _, r := range doc.Responses {
			sb.WriteString(fmt.Sprintf("\n### %s (%s)\n\n", r.Provider, r.Model))
			if !r.OK() {
				sb.WriteString(fmt.Sprintf("_failed (%s): %s_\n", r.ErrorKind, r.Error))
				continue
			}
			sb.WriteString(strings.TrimSpace(r.Content))
			sb.WriteString("\n")
		}
	}

	if s := doc.Search; s != nil {
		sb.WriteString("\n## Sources\n\n")
		if s.AllFailed {
			sb.WriteString("_Every search call failed; the panel answered without references._\n")
		}
		for i, r := range s.Results {
			sb.WriteString(fmt.Sprintf("%d. [%s](%s) (%s)\n", i+1, r.Title, r.URL, r.Source))
		}
		sb.WriteString(fmt.Sprintf("\n%d iterations, %d unique results, %d duplicates dropped\n",
			len(s.Iterations), len(s.Results), s.Duplicates))
	}

	if len(doc.Timings) > 0 {
		sb.WriteString("\n## Timings\n\n")
		for _, t := range doc.Timings {
			line := fmt.Sprintf("- %s: %.2fs", t.Stage, t.Seconds)
			if t.Error != "" {
				line += " (" + t.Error + ")"
			}
			sb.WriteString(line + "\n")
		}
	}
	return sb.String()
}
