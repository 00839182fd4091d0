// Package ident provides identifier canonicalization.
//
// User-visible variable names are lowercased and whitespace-unified before
// any other part of the engine sees them. Two names that canonicalize to the
// same Ident refer to the same entity; display names are kept separately by
// callers that need them for error messages.
package ident

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Ident is a canonicalized identifier.
type Ident string

var lowerer = cases.Lower(language.Und)

// Canonicalize normalizes a user-visible name: surrounding quotes are
// stripped, the literal escape `\n` and all whitespace runs become single
// underscores, letters are lowercased, and non-ASCII content is
// preserved. Canonicalize is idempotent.
func Canonicalize(name string) Ident {
	s := strings.TrimSpace(name)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, "\\n", "_")

	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '_':
			if !inRun {
				b.WriteByte('_')
			}
			inRun = true
		default:
			b.WriteRune(r)
			inRun = false
		}
	}
	return Ident(lowerer.String(b.String()))
}

// IsCanonical reports whether s is already in canonical form.
func IsCanonical(s string) bool {
	return Ident(s) == Canonicalize(s)
}

// SyntheticPrefix starts every identifier synthesized during module
// expansion. Canonicalize leaves '$' and '⁚' in place and the lexer
// accepts both in unquoted identifiers, so a user name can carry the
// prefix; no pass rejects such names.
const SyntheticPrefix = "$⁚"

// IsSynthetic reports whether id was generated by module expansion.
func IsSynthetic(id Ident) bool {
	return strings.HasPrefix(string(id), SyntheticPrefix)
}

// Synthetic builds a hygienic identifier under the reserved prefix.
func Synthetic(parts ...string) Ident {
	return Ident(SyntheticPrefix + strings.Join(parts, "·"))
}
