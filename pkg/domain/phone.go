package domain

import "strings"

// Phone is a digits-only phone number. Source systems decorate numbers with
// messaging-gateway suffixes ("5511912345678@c.us", device suffixes like
// ":12") and human formatting ("+55 (11) 91234-5678"); Phone holds the
// normalized form so matching never sees any of that.
type Phone string

// messaging gateway suffixes observed in source data
var phoneSuffixes = []string{"@c.us", "@s.whatsapp.net", "@g.us", "@lid"}

// NormalizePhone strips gateway decoration and every non-digit character.
// Returns the empty Phone for input with no digits.
func NormalizePhone(raw string) Phone {
	s := strings.TrimSpace(raw)
	for _, suffix := range phoneSuffixes {
		if i := strings.Index(s, suffix); i >= 0 {
			s = s[:i]
			break
		}
	}
	// device suffix: "5511912345678:12"
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return Phone(b.String())
}

func (p Phone) String() string { return string(p) }
func (p Phone) IsEmpty() bool  { return p == "" }

// Last9 returns the trailing nine digits, the portion stable across
// country-code and area-code variance. Shorter numbers return themselves.
func (p Phone) Last9() string {
	s := string(p)
	if len(s) <= 9 {
		return s
	}
	return s[len(s)-9:]
}

// Matches compares two phones on their trailing nine digits. Empty phones
// never match anything.
func (p Phone) Matches(other Phone) bool {
	if p.IsEmpty() || other.IsEmpty() {
		return false
	}
	return p.Last9() == other.Last9()
}
