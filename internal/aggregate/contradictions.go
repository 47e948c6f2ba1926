package aggregate

import (
	"regexp"
	"strings"
)

var (
	contradictionsHeading = regexp.MustCompile(`(?i)^(#{1,6})\s*(?:\*\*)?\s*contradictions\b`)
	anyHeading            = regexp.MustCompile(`^(#{1,6})\s`)
	bulletPrefix          = regexp.MustCompile(`^(?:[-*+•]|\d+[.)])\s+`)
)

// ParseContradictions pulls the bullet list under a "Contradictions"
// heading out of a synthesized answer. Bullets saying there are none are
// dropped. The parse is best-effort; no heading yields nil.
func ParseContradictions(content string) []string {
	lines := strings.Split(content, "\n")
	start, level := -1, 0
	for i, line := range lines {
		if m := contradictionsHeading.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			start, level = i+1, len(m[1])
		}
	}
	if start < 0 {
		return nil
	}

	var notes []string
	var para []string
	flush := func() {
		if len(para) > 0 {
			notes = append(notes, strings.Join(para, " "))
			para = nil
		}
	}
	for _, raw := range lines[start:] {
		line := strings.TrimSpace(raw)
		if m := anyHeading.FindStringSubmatch(line); m != nil && len(m[1]) <= level {
			break
		}
		if line == "" {
			flush()
			continue
		}
		if loc := bulletPrefix.FindStringIndex(line); loc != nil {
			flush()
			para = append(para, strings.TrimSpace(line[loc[1]:]))
			continue
		}
		para = append(para, line)
	}
	flush()

	out := notes[:0]
	for _, n := range notes {
		if isNone(n) {
			continue
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isNone(s string) bool {
	s = strings.ToLower(strings.Trim(strings.TrimSpace(s), ".!*_ "))
	return s == "none" || s == "n/a" || strings.HasPrefix(s, "no contradictions") || strings.HasPrefix(s, "none found")
}
