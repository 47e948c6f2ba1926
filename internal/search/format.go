package search

import (
	"fmt"
	"strings"
)

const (
	contextSnippetRunes = 200
	summarySnippetRunes = 100
	summaryPerSource    = 5
)

// FormatContext renders the corpus as reference material for the panel:
// up to perSource results per source, grouped under source headers.
// An empty corpus yields "".
func FormatContext(c *Corpus, perSource int) string {
	if c.Len() == 0 {
		return ""
	}
	if perSource <= 0 {
		perSource = 5
	}

	sources, groups := c.BySource()
	var sb strings.Builder
	for _, source := range sources {
		results := groups[source]
		sb.WriteString(fmt.Sprintf("\n[From %s]\n", strings.ToUpper(source)))
		for i, r := range results {
			if i >= perSource {
				break
			}
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, r.Title))
			if r.Snippet != "" {
				sb.WriteString(fmt.Sprintf("   %s\n", truncateRunes(r.Snippet, contextSnippetRunes)))
			}
			sb.WriteString(fmt.Sprintf("   URL: %s\n", r.URL))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatSummary renders a human-readable overview of a search run.
func FormatSummary(o *Outcome) string {
	if o == nil {
		return "No search was run."
	}

	var sb strings.Builder
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	sb.WriteString(fmt.Sprintf("Search summary: %s\n", o.Query))
	sb.WriteString(strings.Repeat("=", 60) + "\n")

	for _, it := range o.Iterations {
		sb.WriteString(fmt.Sprintf("iteration %d %q:", it.Index+1, it.Query))
		for _, s := range it.Sources {
			if s.Error != "" {
				sb.WriteString(fmt.Sprintf(" %s=error", s.Source))
			} else {
				sb.WriteString(fmt.Sprintf(" %s=%d", s.Source, s.Results))
			}
		}
		sb.WriteString(fmt.Sprintf(" (+%d new, %d dup)\n", it.Added, it.Duplicates))
	}

	sources, groups := o.Corpus.BySource()
	for _, source := range sources {
		results := groups[source]
		sb.WriteString(fmt.Sprintf("\n[%s] %d results\n", strings.ToUpper(source), len(results)))
		for i, r := range results {
			if i >= summaryPerSource {
				break
			}
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, r.Title))
			sb.WriteString(fmt.Sprintf("   URL: %s\n", r.URL))
			if r.Snippet != "" {
				sb.WriteString(fmt.Sprintf("   %s\n", truncateRunes(r.Snippet, summarySnippetRunes)))
			}
		}
		if len(results) > summaryPerSource {
			sb.WriteString(fmt.Sprintf("   ... %d more\n", len(results)-summaryPerSource))
		}
	}

	sb.WriteString(fmt.Sprintf("\nTotal: %d unique results, %d duplicates dropped", o.Corpus.Len(), o.Duplicates))
	if o.AllFailed {
		sb.WriteString(" (all search calls failed)")
	}
	sb.WriteString("\n" + strings.Repeat("=", 60))
	return sb.String()
}
