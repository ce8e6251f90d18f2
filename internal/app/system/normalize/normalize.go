// internal/app/system/normalize/normalize.go
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Email trims and lowercases an address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims and collapses inner whitespace, preserving case.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// HumanID returns the canonical form of an institution code.
func HumanID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// FiscalNumber keeps only the digits of a tax identifier, so
// "123 456 789" and "123456789" compare equal.
func FiscalNumber(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IdentityName folds a person name for matching: diacritics stripped,
// case-folded, whitespace collapsed. "  DUPONT  Élodie" becomes "dupont elodie".
func IdentityName(s string) string {
	s = Name(s)
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(stripped)
}
