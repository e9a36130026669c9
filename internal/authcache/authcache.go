// Package authcache memoizes reviewer authorization results for a bounded
// time and size.
package authcache

import (
	"net/url"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/joescharf/revgate/internal/models"
)

// Defaults used when no option overrides them.
const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 1000
)

type entry struct {
	result   models.ReviewerAuth
	storedAt time.Time
}

// Cache maps owner/repo/login keys to the last authorization result.
// Expired entries are treated as absent on read and are not swept.
// When full, the oldest insertion is evicted (insertion order, not LRU).
type Cache struct {
	mu       sync.Mutex
	entries  *orderedmap.OrderedMap[string, entry]
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCapacity sets the maximum number of entries.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:  orderedmap.New[string, entry](),
		ttl:      DefaultTTL,
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds the cache key for a reviewer on a repository.
func Key(owner, repo, login string) string {
	return url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/" + url.PathEscape(login)
}

// Get returns the cached result for key if present and younger than the TTL.
func (c *Cache) Get(key string) (models.ReviewerAuth, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if !ok {
		return models.ReviewerAuth{}, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		return models.ReviewerAuth{}, false
	}
	return e.result, true
}

// Put stores result under key, evicting the oldest insertion if the cache is full.
// Re-putting an existing key moves it to the newest position.
func (c *Cache) Put(key string, result models.ReviewerAuth) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries.Delete(key); !ok && c.entries.Len() >= c.capacity {
		if oldest := c.entries.Oldest(); oldest != nil {
			c.entries.Delete(oldest.Key)
		}
	}
	c.entries.Set(key, entry{result: result, storedAt: c.now()})
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = orderedmap.New[string, entry]()
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
