package token

import (
	"sync"
	"time"
)

type expiring interface {
	isValidAt(now time.Time) bool
}

// tokenCache maps a request key to the last token fetched for it. Lookups
// share the lock; only inserts take it exclusively.
type tokenCache[T expiring] struct {
	mu      sync.RWMutex
	entries map[string]T
}

func newTokenCache[T expiring]() *tokenCache[T] {
	return &tokenCache[T]{entries: make(map[string]T)}
}

// valid returns the cached token for key if it is still valid at now.
func (c *tokenCache[T]) valid(key string, now time.Time) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.entries[key]
	if !ok || !t.isValidAt(now) {
		var zero T
		return zero, false
	}
	return t, true
}

// put replaces whatever is cached for key.
func (c *tokenCache[T]) put(key string, t T) {
	c.mu.Lock()
	c.entries[key] = t
	c.mu.Unlock()
}

func (c *tokenCache[T]) clear() {
	c.mu.Lock()
	c.entries = make(map[string]T)
	c.mu.Unlock()
}

func (c *tokenCache[T]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
