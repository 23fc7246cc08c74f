package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	t.Run("strips human formatting", func(t *testing.T) {
		assert.Equal(t, Phone("5511912345678"), NormalizePhone("+55 (11) 91234-5678"))
	})

	t.Run("strips messaging gateway suffix", func(t *testing.T) {
		assert.Equal(t, Phone("5511912345678"), NormalizePhone("5511912345678@c.us"))
		assert.Equal(t, Phone("5511912345678"), NormalizePhone("5511912345678@s.whatsapp.net"))
	})

	t.Run("strips device suffix", func(t *testing.T) {
		assert.Equal(t, Phone("5511912345678"), NormalizePhone("5511912345678:12"))
	})

	t.Run("no digits yields empty", func(t *testing.T) {
		assert.True(t, NormalizePhone("not a phone").IsEmpty())
		assert.True(t, NormalizePhone("").IsEmpty())
	})
}

func TestPhoneMatching(t *testing.T) {
	t.Run("matches on trailing nine digits across country code variance", func(t *testing.T) {
		withCountry := NormalizePhone("+55 11 91234-5678")
		withoutCountry := NormalizePhone("11 91234-5678")
		assert.True(t, withCountry.Matches(withoutCountry))
		assert.True(t, withoutCountry.Matches(withCountry))
	})

	t.Run("different numbers do not match", func(t *testing.T) {
		a := NormalizePhone("5511912345678")
		b := NormalizePhone("5511987654321")
		assert.False(t, a.Matches(b))
	})

	t.Run("empty phones never match", func(t *testing.T) {
		assert.False(t, Phone("").Matches(Phone("")))
		assert.False(t, Phone("5511912345678").Matches(Phone("")))
	})
}

func TestLast9(t *testing.T) {
	assert.Equal(t, "912345678", Phone("5511912345678").Last9())
	assert.Equal(t, "12345", Phone("12345").Last9())
}
