package search

import "strings"

// queryVariants is indexed by iteration mod its length. "%s" marks where the
// base query goes; entry 0 is the base query itself.
var queryVariants = []string{
	"%s",
	"%s overview",
	"%s tutorial",
	"%s best practices",
	"%s examples",
	"%s comparison",
	"%s latest",
	"%s research",
	"latest %s",
	"%s implementation",
}

// Diversify decorates base for the given iteration so successive searches
// cover different angles. Negative iterations return base unchanged.
// It is pure: the same inputs always give the same query.
func Diversify(base string, iteration int) string {
	base = strings.TrimSpace(base)
	if base == "" || iteration <= 0 {
		return base
	}
	return strings.Replace(queryVariants[iteration%len(queryVariants)], "%s", base, 1)
}
