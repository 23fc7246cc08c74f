package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("direct code", func(t *testing.T) {
		err := New(CodeNotConfigured, "no credential")
		assert.True(t, HasCode(err, CodeNotConfigured))
		assert.False(t, HasCode(err, CodeInternal))
	})

	t.Run("wrapped code survives fmt wrapping", func(t *testing.T) {
		inner := New(CodeSchemaMismatch, "column absent")
		outer := fmt.Errorf("pass A failed: %w", inner)
		assert.True(t, HasCode(outer, CodeSchemaMismatch))
	})

	t.Run("nested coded errors expose inner codes", func(t *testing.T) {
		inner := New(CodeRemoteUnavailable, "store down")
		outer := Wrap(inner, CodeInternal, "cycle failed")
		assert.True(t, HasCode(outer, CodeInternal))
		assert.True(t, HasCode(outer, CodeRemoteUnavailable))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestWrapNil(t *testing.T) {
	require.NoError(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeConflict, CodeOf(New(CodeConflict, "busy")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("io failure")
	err := Wrap(cause, CodeInternal, "save failed")
	assert.True(t, errors.Is(err, cause))
}
