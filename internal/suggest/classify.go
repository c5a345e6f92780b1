package suggest

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"studiofinder/suggestservice/internal/domain"
)

var (
	ukPostcodePattern = regexp.MustCompile(`^[a-z]{1,2}\d[a-z\d]?\s*\d[a-z]{2}$`)
	usZipPattern      = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	usernamePattern   = regexp.MustCompile(`^[a-z0-9_-]{3,20}$`)
)

const (
	minQueryRunes     = 2
	minUserQueryRunes = 3
	minFallbackRunes  = 3
)

// Classify decides whether the raw input looks like a username or a place.
// Postcode patterns are checked first: "90210" matches both rules.
func Classify(input string) domain.QueryKind {
	value := strings.ToLower(strings.TrimSpace(input))
	if IsPostcode(value) {
		return domain.QueryKindLocation
	}
	if usernamePattern.MatchString(value) {
		return domain.QueryKindUser
	}
	return domain.QueryKindLocation
}

// IsPostcode reports whether value is a UK postcode or a US ZIP / ZIP+4.
func IsPostcode(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	return ukPostcodePattern.MatchString(value) || usZipPattern.MatchString(value)
}

// ShouldQueryUsers gates the user-directory source.
func ShouldQueryUsers(input string, kind domain.QueryKind) bool {
	return kind == domain.QueryKindUser || queryLength(input) >= minUserQueryRunes
}

func queryLength(input string) int {
	return utf8.RuneCountInString(strings.TrimSpace(input))
}
