package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProbeCountingServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		json.NewEncoder(w).Encode([]any{})
	}))
	t.Cleanup(srv.Close)
	return srv, &probes
}

func TestHandleCache_ReusesHandleWhileCredentialUnchanged(t *testing.T) {
	ctx := context.Background()
	srv, probes := newProbeCountingServer(t)
	cache := NewHandleCache()

	first, err := cache.Handle(ctx, srv.URL, "secret-key")
	require.NoError(t, err)
	second, err := cache.Handle(ctx, srv.URL, "secret-key")
	require.NoError(t, err)

	assert.Same(t, first, second)
	// two probe columns, one build
	assert.Equal(t, int32(2), probes.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestHandleCache_NewSecretBuildsNewHandle(t *testing.T) {
	ctx := context.Background()
	srv, _ := newProbeCountingServer(t)
	cache := NewHandleCache()

	first, err := cache.Handle(ctx, srv.URL, "old-secret")
	require.NoError(t, err)
	second, err := cache.Handle(ctx, srv.URL, "new-secret")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 2, cache.Len())
}

func TestHandleCache_EvictDropsAllHandlesForURL(t *testing.T) {
	ctx := context.Background()
	srv, probes := newProbeCountingServer(t)
	cache := NewHandleCache()

	_, err := cache.Handle(ctx, srv.URL, "secret-a")
	require.NoError(t, err)
	_, err = cache.Handle(ctx, srv.URL, "secret-b")
	require.NoError(t, err)
	require.Equal(t, 2, cache.Len())

	cache.Evict(srv.URL)
	assert.Equal(t, 0, cache.Len())

	before := probes.Load()
	_, err = cache.Handle(ctx, srv.URL, "secret-a")
	require.NoError(t, err)
	assert.Greater(t, probes.Load(), before)
}

func TestHandleCache_FailedProbeIsNotCached(t *testing.T) {
	cache := NewHandleCache()
	_, err := cache.Handle(context.Background(), "http://127.0.0.1:1", "secret")
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())
}
