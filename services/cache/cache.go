package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize bounds the cache. The contract is exact-repeat suppression,
// so an LRU at the component boundary is enough; entries otherwise live
// for the process lifetime.
const DefaultSize = 4096

// ResponseCache short-circuits identical repeated requests, keyed by
// (identity, content hash of the prompt). Process-local, not shared
// across instances.
type ResponseCache struct {
	lru *lru.Cache[string, string]

	mu     sync.Mutex
	hits   uint64
	misses uint64
}

// New creates a response cache holding up to size entries.
func New(size int) (*ResponseCache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	inner, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create response cache: %w", err)
	}
	return &ResponseCache{lru: inner}, nil
}

// Get returns the cached result for the exact (identity, prompt) pair.
func (c *ResponseCache) Get(identity, prompt string) (string, bool) {
	content, ok := c.lru.Get(Key(identity, prompt))

	c.mu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()

	return content, ok
}

// Set stores the last successful result for the pair.
func (c *ResponseCache) Set(identity, prompt, content string) {
	c.lru.Add(Key(identity, prompt), content)
}

// Stats is a read-only view of cache effectiveness.
type Stats struct {
	Size   int    `json:"size"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// Stats returns current counters.
func (c *ResponseCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:   c.lru.Len(),
		Hits:   c.hits,
		Misses: c.misses,
	}
}

// Key builds the cache key from the identity and the prompt's SHA-256.
func Key(identity, prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return identity + ":" + hex.EncodeToString(sum[:])
}
