package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStateStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := NewFileStateStore(path)
	require.NoError(t, err)

	want := State{
		LastPolledAt:   time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC),
		TotalProcessed: 12,
		TotalErrors:    3,
		LastError:      "store is down",
	}
	require.NoError(t, store.Save(want))

	reopened, err := NewFileStateStore(path)
	require.NoError(t, err)
	got, err := reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFileStateStore_MissingFileIsZeroState(t *testing.T) {
	store, err := NewFileStateStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, State{}, got)
}

func TestFileStateStore_CorruptFileResetsCounters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("<<garbage>>"), 0o644))

	store, err := NewFileStateStore(path)
	require.NoError(t, err)
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, State{}, got)
}
