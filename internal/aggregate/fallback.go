package aggregate

import (
	"fmt"
	"strings"

	"github.com/kayz/quorum/internal/llm"
)

const fallbackNote = "Note: the answers above come from separate models and were not reconciled. " +
	"Where they disagree, check additional sources."

// Concatenate joins the successful answers in request order, each under an
// attribution header. It returns "" when no answer succeeded.
func Concatenate(rs *llm.Responses) string {
	ok := rs.Succeeded()
	if len(ok) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, r := range ok {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("### Answer from %s (%s)\n\n", r.ProviderID, r.Model))
		sb.WriteString(strings.TrimSpace(r.Content))
	}
	sb.WriteString("\n\n---\n\n")
	sb.WriteString(fallbackNote)
	return sb.String()
}

// NoContentMessage explains why there is no answer at all.
func NoContentMessage(rs *llm.Responses) string {
	if rs.Len() == 0 {
		return "No answer is available: no providers were queried."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("No answer is available: all %d providers failed.\n", rs.Len()))
	for _, r := range rs.All() {
		switch {
		case r.Err != nil:
			sb.WriteString(fmt.Sprintf("\n- %s (%s): %s: %s", r.ProviderID, r.Model, r.Err.Kind, r.Err.Cause()))
		default:
			sb.WriteString(fmt.Sprintf("\n- %s (%s): empty answer", r.ProviderID, r.Model))
		}
	}
	return sb.String()
}

// FormatResponses renders every response, failures included, for display.
func FormatResponses(rs *llm.Responses) string {
	var sb strings.Builder
	for i, r := range rs.All() {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("### Answer %d: %s (%s)\n\n", i+1, r.ProviderID, r.Model))
		if r.OK() {
			sb.WriteString(strings.TrimSpace(r.Content))
			sb.WriteString(fmt.Sprintf("\n\n_time: %.2fs", r.Elapsed.Seconds()))
			if r.Usage != nil && r.Usage.TotalTokens > 0 {
				sb.WriteString(fmt.Sprintf(", tokens: %d", r.Usage.TotalTokens))
			}
			if r.Truncated() {
				sb.WriteString(", truncated at token limit")
			}
			sb.WriteString("_")
			continue
		}
		sb.WriteString(fmt.Sprintf("_error (%s): %s_", r.Err.Kind, r.Err.Cause()))
	}
	return sb.String()
}
