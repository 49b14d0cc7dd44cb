package domain

import (
	"regexp"
)

// Order tokens appear as "#4093", "Order 4093", "order no. 4093" and
// similar. Subject lines mutate across reply chains, so extraction
// scans both subject and body.
var orderTokenPattern = regexp.MustCompile(`(?i)(?:order\s*(?:no\.?|number|#)?\s*|#)(\d{3,12})`)

// ExtractOrderTokens returns order number candidates found in the
// given texts, in first-seen order, without duplicates.
func ExtractOrderTokens(texts ...string) []string {
	seen := make(map[string]bool)
	var tokens []string
	for _, text := range texts {
		for _, m := range orderTokenPattern.FindAllStringSubmatch(text, -1) {
			tok := m[1]
			if seen[tok] {
				continue
			}
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}
	return tokens
}
