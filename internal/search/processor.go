package search

import (
	"regexp"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// listMarker matches a leading "1." / "2)" / "-" / "*" / "•" list marker.
var listMarker = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s+`)

// ParseVariants turns a model response into query variants: the question first, then each
// non-empty response line with list markers removed. Exact duplicates are dropped and the
// result is capped at models.MaxVariants.
func ParseVariants(question, response string) []string {
	variants := []string{question}
	seen := map[string]struct{}{question: {}}
	for _, line := range strings.Split(response, "\n") {
		if len(variants) == models.MaxVariants {
			break
		}
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		variants = append(variants, line)
	}
	return variants
}
