// Package cache memoizes full enforcement decisions keyed by the
// canonicalized request. The cache is guarded independently of the policy
// state because enforce both reads and writes it; any policy or role
// mutation clears it whole, since one mutation can change every cached
// outcome.
package cache

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Key canonicalizes a request into its cache key: the ordered field values
// joined with a delimiter unlikely to appear inside them.
func Key(values []string) string {
	return strings.Join(values, "$$")
}

// DecisionCache stores computed decisions per canonical request key.
type DecisionCache interface {
	Get(key string) (decision bool, ok bool)
	Put(key string, decision bool)
	InvalidateAll()
}

// New returns an LRU-bounded cache when capacity is positive and an
// unbounded one otherwise.
func New(capacity int) DecisionCache {
	if capacity > 0 {
		c, err := lru.New[string, bool](capacity)
		if err != nil {
			// lru.New only fails on a non-positive size.
			panic(err)
		}
		return &lruCache{c: c}
	}
	return &mapCache{m: map[string]bool{}}
}

type lruCache struct {
	c *lru.Cache[string, bool]
}

func (l *lruCache) Get(key string) (bool, bool) { return l.c.Get(key) }
func (l *lruCache) Put(key string, decision bool) {
	l.c.Add(key, decision)
}
func (l *lruCache) InvalidateAll() { l.c.Purge() }

type mapCache struct {
	mu sync.RWMutex
	m  map[string]bool
}

func (c *mapCache) Get(key string) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.m[key]
	return d, ok
}

func (c *mapCache) Put(key string, decision bool) {
	c.mu.Lock()
	c.m[key] = decision
	c.mu.Unlock()
}

func (c *mapCache) InvalidateAll() {
	c.mu.Lock()
	c.m = map[string]bool{}
	c.mu.Unlock()
}
