// Package normalize canonicalizes contact keys so legacy sources can be
// matched exactly.
package normalize

import (
	"strings"

	"golang.org/x/text/cases"
)

// Email trims surrounding whitespace and case-folds the address.
func Email(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	return cases.Fold().String(trimmed)
}

// Phone trims whitespace and drops visual separators. A leading plus sign is
// kept so international and national forms stay distinct.
func Phone(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(trimmed))
	for i, r := range trimmed {
		switch r {
		case ' ', '\t', '-', '.', '(', ')', '/':
			continue
		case '+':
			if i == 0 {
				b.WriteRune(r)
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
