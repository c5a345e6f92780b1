package suggest

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// dedupeKey is the display-text identity used when merging sources.
func dedupeKey(text string) string {
	return cases.Fold().String(strings.TrimSpace(text))
}

// matchKey additionally strips diacritics so "Malmo" matches "Malmö".
func matchKey(text string) string {
	folded, _, err := transform.String(
		transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		),
		cases.Fold().String(strings.TrimSpace(text)),
	)
	if err != nil {
		return cases.Fold().String(strings.TrimSpace(text))
	}
	return strings.Join(strings.Fields(folded), " ")
}
