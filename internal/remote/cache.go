package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"concilia/internal/platform/metrics"
)

// HandleCache builds and caches Store handles keyed by (url, secret). A
// handle stays cached while the credential is unchanged; reconfiguration
// evicts by URL. Concurrent builds for the same key are deduplicated so a
// slow capability probe runs once, not once per caller.
type HandleCache struct {
	mu      sync.RWMutex
	handles map[string]Store // key: url + secret digest
	byURL   map[string][]string

	group   singleflight.Group
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type CacheOption func(*HandleCache)

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *HandleCache) { c.logger = logger }
}

func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *HandleCache) { c.metrics = m }
}

func WithCallTimeout(d time.Duration) CacheOption {
	return func(c *HandleCache) { c.timeout = d }
}

func NewHandleCache(opts ...CacheOption) *HandleCache {
	c := &HandleCache{
		handles: make(map[string]Store),
		byURL:   make(map[string][]string),
		timeout: 10 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle returns a cached Store for the credential pair, building and
// probing a new client on miss.
func (c *HandleCache) Handle(ctx context.Context, url, secretKey string) (Store, error) {
	key := cacheKey(url, secretKey)

	c.mu.RLock()
	handle, ok := c.handles[key]
	c.mu.RUnlock()
	if ok {
		return handle, nil
	}

	built, err, _ := c.group.Do(key, func() (any, error) {
		client := NewClient(url, secretKey,
			WithLogger(c.logger),
			WithMetrics(c.metrics),
			WithTimeout(c.timeout))
		if err := client.Probe(ctx); err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.handles[key] = client
		c.byURL[url] = append(c.byURL[url], key)
		c.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return built.(Store), nil
}

// Evict drops every cached handle for a URL. Called on tenant
// reconfiguration and after a failed resolution probe.
func (c *HandleCache) Evict(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.byURL[url] {
		delete(c.handles, key)
	}
	delete(c.byURL, url)
}

// Len reports how many handles are cached. Used by tests and the status
// endpoint.
func (c *HandleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handles)
}

func cacheKey(url, secretKey string) string {
	// the secret never appears in a map key in plaintext
	digest := sha256.Sum256([]byte(secretKey))
	return url + "|" + hex.EncodeToString(digest[:])
}
