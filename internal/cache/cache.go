// Package cache memoizes tool results by (tool name, canonical arguments,
// epoch) so repeated identical calls within a session do not hit the paid
// upstream twice.
//
// The epoch is a UTC day bucket: entries become unreachable at the day
// boundary because the key changes, and their TTL expires them shortly
// after. The cache is advisory; a nil *Cache is a valid always-miss cache,
// so disabling it never changes observable behavior.
package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Config holds sizing knobs for a [Cache].
type Config struct {
	// MaxEntries bounds the number of cached results. Default: 4096.
	MaxEntries int64

	// Now supplies the clock for epoch derivation. Nil means time.Now.
	Now func() time.Time
}

// Cache is a ristretto-backed result cache. Safe for concurrent use.
// Concurrent puts to the same key are last-write-wins, which is acceptable
// because a key fully determines the upstream query and therefore the value.
type Cache[V any] struct {
	c   *ristretto.Cache[string, V]
	now func() time.Time
}

// New creates a result cache.
func New[V any](cfg Config) (*Cache[V], error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 4096
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, V]{
		NumCounters: cfg.MaxEntries * 10, // ~10x expected items
		MaxCost:     cfg.MaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Cache[V]{c: c, now: cfg.Now}, nil
}

// key builds the full cache key. args must already be canonical (defaults
// applied, deterministic serialization) so that argument order and omitted
// defaults cannot split entries.
func (c *Cache[V]) key(tool, args string) string {
	epoch := c.now().UTC().Format("2006-01-02")
	return tool + "|" + args + "|" + epoch
}

// Get returns the cached result for (tool, args) in the current epoch.
func (c *Cache[V]) Get(tool, args string) (V, bool) {
	if c == nil {
		var zero V
		return zero, false
	}
	return c.c.Get(c.key(tool, args))
}

// Put stores a result for the current epoch. Entries expire at the next
// epoch boundary. The write is flushed before returning so a Get that
// follows a Put on the same goroutine always hits.
func (c *Cache[V]) Put(tool, args string, v V) {
	if c == nil {
		return
	}
	now := c.now().UTC()
	boundary := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	c.c.SetWithTTL(c.key(tool, args), v, 1, boundary.Sub(now))
	c.c.Wait()
}

// Close releases the cache's resources. Nil-safe.
func (c *Cache[V]) Close() {
	if c == nil {
		return
	}
	c.c.Close()
}
