// Package cache provides an in-memory TTL cache with hit/miss accounting.
//
// The cache sits in front of the resilience chain: a hit bypasses the
// protected network call entirely, a miss falls through to the call and the
// result is stored for subsequent lookups. Entries never outlive the
// process and there is no cross-process coordination.
//
// A cache is never a source of errors. A miss is a normal control-flow
// outcome reported through the boolean return of Get, not an error.
package cache

import (
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
)

// Category classifies cached data by how quickly it goes stale. Each
// category's TTL is a multiple of the cache's base TTL.
type Category int

const (
	// CategoryItem is a single-item lookup (one issue, one pull request).
	CategoryItem Category = iota

	// CategoryCollection is a collection query (a page of issues).
	// Collections tolerate staleness longer than single items.
	CategoryCollection

	// CategoryMetadata is slowly changing metadata (repository settings,
	// rate-limit ceilings).
	CategoryMetadata
)

// String returns a string representation of the category.
func (c Category) String() string {
	switch c {
	case CategoryItem:
		return "item"
	case CategoryCollection:
		return "collection"
	case CategoryMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// ttlMultiplier returns the category's multiple of the base TTL.
func (c Category) ttlMultiplier() time.Duration {
	switch c {
	case CategoryCollection:
		return 2
	case CategoryMetadata:
		return 12
	default:
		return 1
	}
}

// DefaultBaseTTL is the base expiry applied to item-category entries when
// no TTL is configured explicitly.
const DefaultBaseTTL = 5 * time.Minute

type entry struct {
	value    any
	storedAt time.Time
	ttl      time.Duration
}

func (e entry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) >= e.ttl
}

// Cache is a process-wide TTL cache safe for concurrent use. Expiry is
// checked lazily on Get; an optional periodic sweep (CleanupExpired)
// reclaims entries nothing reads anymore.
type Cache struct {
	baseTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]entry
	hits    uint64
	misses  uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithBaseTTL overrides the base TTL that category multipliers scale from.
func WithBaseTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.baseTTL = ttl
		}
	}
}

// WithNowFunc injects the time source, used by tests to control expiry.
func WithNowFunc(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		baseTTL: DefaultBaseTTL,
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTLFor returns the effective TTL for a data category.
func (c *Cache) TTLFor(cat Category) time.Duration {
	return c.baseTTL * cat.ttlMultiplier()
}

// Get returns the value stored under key if the entry exists and has not
// expired. A live entry counts as a hit; a missing or expired entry counts
// as a miss, and an expired entry is removed on the spot.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

// Put stores value under key with the TTL of the given category,
// overwriting any existing entry. Last writer wins.
func (c *Cache) Put(key string, value any, cat Category) {
	c.PutTTL(key, value, c.TTLFor(cat))
}

// PutTTL stores value under key with an explicit TTL, overwriting any
// existing entry.
func (c *Cache) PutTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.baseTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{
		value:    value,
		storedAt: c.now(),
		ttl:      ttl,
	}
}

// Invalidate removes every entry whose key starts with prefix and returns
// the count removed. An empty prefix removes all entries. Hit/miss counters
// are unaffected.
func (c *Cache) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prefix == "" {
		removed := len(c.entries)
		c.entries = make(map[string]entry)
		return removed
	}

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear removes every entry and resets the hit/miss counters to zero.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry)
	c.hits = 0
	c.misses = 0
}

// CleanupExpired removes entries whose TTL has elapsed and returns the
// count removed. Get already drops expired entries lazily; this sweep
// reclaims memory for keys nothing reads anymore.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("cache sweep removed expired entries",
			slog.Int("removed", removed),
			slog.Int("remaining", len(c.entries)))
	}
	return removed
}

// Len returns the number of stored entries, including any whose TTL has
// elapsed but which no sweep or Get has removed yet.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	TotalEntries   int            `json:"total_entries"`
	Hits           uint64         `json:"cache_hits"`
	Misses         uint64         `json:"cache_misses"`
	HitRatePercent float64        `json:"hit_rate_percent"`
	TTLs           map[string]int `json:"ttl_seconds"`
}

// Stats returns current cache statistics. The hit rate is a percentage of
// all lookups, rounded to two decimals; zero lookups report a zero rate.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		TotalEntries: len(c.entries),
		Hits:         c.hits,
		Misses:       c.misses,
		TTLs: map[string]int{
			CategoryItem.String():       int(c.TTLFor(CategoryItem).Seconds()),
			CategoryCollection.String(): int(c.TTLFor(CategoryCollection).Seconds()),
			CategoryMetadata.String():   int(c.TTLFor(CategoryMetadata).Seconds()),
		},
	}
	if total := c.hits + c.misses; total > 0 {
		rate := float64(c.hits) / float64(total) * 100
		s.HitRatePercent = math.Round(rate*100) / 100
	}
	return s
}
