// cache.go provides an in-memory implementation of MetadataCache.
//
// Documents expire after the configured TTL. All operations are thread-safe
// and data is lost on process restart; production uses the redis adapter.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

// Compile-time check that MetadataCache implements outbound.MetadataCache
var _ outbound.MetadataCache = (*MetadataCache)(nil)

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// MetadataCache is an in-memory implementation of the MetadataCache port.
type MetadataCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[outbound.MetadataDocument]cacheEntry
	closed  bool
}

// NewMetadataCache creates a cache whose entries live for ttl. A zero ttl never expires.
func NewMetadataCache(ttl time.Duration) *MetadataCache {
	return &MetadataCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[outbound.MetadataDocument]cacheEntry),
	}
}

// Get returns the document, or nil if it is absent or expired.
func (c *MetadataCache) Get(ctx context.Context, doc outbound.MetadataDocument) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[doc]
	if !ok {
		return nil, nil
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		return nil, nil
	}
	return e.data, nil
}

// Set stores the document.
func (c *MetadataCache) Set(ctx context.Context, doc outbound.MetadataDocument, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := cacheEntry{data: append([]byte(nil), data...)}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.entries[doc] = e
	return nil
}

// Close marks the cache as closed.
func (c *MetadataCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Len returns the number of cached documents (for testing).
func (c *MetadataCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
