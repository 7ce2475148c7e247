package types

import (
	"regexp"
	"strings"
)

// fiscalCodePattern matches an Italian personal fiscal code, including the
// omocodia substitutions (digits replaced by L, M, N, P, Q, R, S, T, U, V).
var fiscalCodePattern = regexp.MustCompile(
	`^[A-Z]{6}[0-9LMNPQRSTUV]{2}[ABCDEHLMPRST][0-9LMNPQRSTUV]{2}[A-Z][0-9LMNPQRSTUV]{3}[A-Z]$`,
)

// IsValidFiscalCode reports whether cf is a syntactically valid fiscal code.
// It performs no checksum verification.
func IsValidFiscalCode(cf string) bool {
	return fiscalCodePattern.MatchString(cf)
}

// RedactFiscalCode masks all but the first three characters so that a log
// line can hint at a recipient without exposing personal data.
func RedactFiscalCode(cf string) string {
	if len(cf) <= 3 {
		return strings.Repeat("*", len(cf))
	}
	return cf[:3] + strings.Repeat("*", len(cf)-3)
}
