package script

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// SourceKey is the cache identity of a caller body: a 64-bit content hash
// of the exact text as passed in. The key is taken on the original snippet,
// not the generated wrapper, so identical logical code hits the cache even
// across calls that requested different generated names.
func SourceKey(body string) uint64 {
	return xxhash.Sum64String(body)
}

// ArtifactCache maps content keys to compiled artifacts. Implementations
// provide insert-if-absent-else-return-existing semantics and never evict
// automatically: for a fixed body and toolchain, at most one artifact exists
// unless caching is disabled.
type ArtifactCache interface {
	Lookup(key uint64) (*Artifact, bool)
	// Store inserts the artifact unless the key is already present and
	// returns the surviving entry either way.
	Store(key uint64, a *Artifact) *Artifact
	Len() int
}

// MemoryCache is the in-process ArtifactCache every engine shares by
// default. Safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[uint64]*Artifact
}

// NewMemoryCache returns an empty cache. Tests substitute private caches so
// the process-wide one stays isolated.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[uint64]*Artifact)}
}

func (c *MemoryCache) Lookup(key uint64) (*Artifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.entries[key]
	return a, ok
}

func (c *MemoryCache) Store(key uint64, a *Artifact) *Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		// First writer wins. Concurrent first-time compiles of the same key
		// are tolerated; artifacts are pure functions of their source, so a
		// lost race only wasted work.
		return existing
	}
	c.entries[key] = a
	return a
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// defaultCache is the process-wide artifact cache.
var defaultCache = NewMemoryCache()

// DefaultCache returns the process-wide cache shared by engines that were
// not given their own.
func DefaultCache() ArtifactCache { return defaultCache }
