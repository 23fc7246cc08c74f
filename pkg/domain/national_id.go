package domain

import "strings"

// NationalID is a digits-only national identity number (CPF-class). Source
// rows carry it plain ("123.456.789-09"), hashed, or encrypted; this type
// only ever holds the normalized plaintext form.
type NationalID string

// NormalizeNationalID strips every non-digit character.
func NormalizeNationalID(raw string) NationalID {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return NationalID(b.String())
}

func (n NationalID) String() string { return string(n) }
func (n NationalID) IsEmpty() bool  { return n == "" }

// Equal compares two ids after both are known-normalized.
func (n NationalID) Equal(other NationalID) bool {
	return !n.IsEmpty() && n == other
}
