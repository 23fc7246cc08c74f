package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeNationalID(t *testing.T) {
	assert.Equal(t, NationalID("12345678909"), NormalizeNationalID("123.456.789-09"))
	assert.Equal(t, NationalID("12345678909"), NormalizeNationalID(" 12345678909 "))
	assert.True(t, NormalizeNationalID("n/a").IsEmpty())
}

func TestNationalIDEqual(t *testing.T) {
	a := NormalizeNationalID("123.456.789-09")
	b := NormalizeNationalID("12345678909")
	assert.True(t, a.Equal(b))

	// empty ids never equal anything, including each other
	assert.False(t, NationalID("").Equal(NationalID("")))
}

func TestCheckRefLinkable(t *testing.T) {
	assert.True(t, GenuineRef(42).Linkable())
	assert.False(t, SyntheticRef(42).Linkable())
	assert.False(t, GenuineRef(0).Linkable())
}
