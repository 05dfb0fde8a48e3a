// Package memory is the authoritative in-process result cache. Entries are
// keyed by (fingerprint, kind), evicted least-frequently-used with the oldest
// entry losing ties, and indexed for Hamming-distance similarity search.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/fishlens/fishlens/pkg/models"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 500

// indexedDistance is the largest distance the byte index answers exactly.
// A 128-bit fingerprint splits into 16 bytes; two fingerprints differing in
// at most 15 bits leave at least one byte position identical, so they share
// a bucket. Wider searches fall back to a linear scan over the kind.
const indexedDistance = models.FingerprintBits/8 - 1

// Match is a similarity search hit.
type Match struct {
	Entry    models.CacheEntry
	Distance int
}

type bucket struct {
	kind models.AnalysisKind
	pos  uint8
	val  byte
}

// Cache is safe for concurrent use; one mutex guards all state.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time

	entries map[models.CacheKey]*models.CacheEntry
	index   map[bucket]map[models.CacheKey]struct{}

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL expires entries older than ttl on access. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache holding at most capacity entries.
func New(capacity int, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		capacity: capacity,
		now:      time.Now,
		entries:  make(map[models.CacheKey]*models.CacheEntry),
		index:    make(map[bucket]map[models.CacheKey]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Capacity returns the maximum number of entries.
func (c *Cache) Capacity() int { return c.capacity }

// Len returns the number of stored entries, including any not yet lazily expired.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetExact returns a copy of the entry for key and counts the hit.
func (c *Cache) GetExact(key models.CacheKey) (models.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.expired(e) {
		c.remove(key)
		c.expirations++
		ok = false
	}
	if !ok {
		c.misses++
		return models.CacheEntry{}, false
	}
	e.HitCount++
	c.hits++
	return e.Clone(), true
}

// FindSimilar returns entries of kind within maxDistance of fp, nearest
// first and older first among equals. Every returned entry counts a hit.
func (c *Cache) FindSimilar(fp models.Fingerprint, kind models.AnalysisKind, maxDistance int) []Match {
	if maxDistance < 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	type hit struct {
		e *models.CacheEntry
		d int
	}
	var hits []hit
	for _, key := range c.candidates(fp, kind, maxDistance) {
		e := c.entries[key]
		if c.expired(e) {
			c.remove(key)
			c.expirations++
			continue
		}
		if d := fp.Distance(e.Fingerprint); d <= maxDistance {
			hits = append(hits, hit{e: e, d: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.d != b.d {
			return a.d < b.d
		}
		if !a.e.CreatedAt.Equal(b.e.CreatedAt) {
			return a.e.CreatedAt.Before(b.e.CreatedAt)
		}
		return a.e.Fingerprint.String() < b.e.Fingerprint.String()
	})

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		h.e.HitCount++
		matches = append(matches, Match{Entry: h.e.Clone(), Distance: h.d})
	}
	return matches
}

// Put stores entry under key, overwriting any previous entry. When the
// cache is full the least-frequently-used entry is evicted first and its
// key returned.
func (c *Cache) Put(key models.CacheKey, entry models.CacheEntry) (victim models.CacheKey, evicted bool) {
	e := entry.Clone()
	e.Fingerprint = key.Fingerprint
	e.Kind = key.Kind
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now()
	}
	if e.HitCount < 1 {
		e.HitCount = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.remove(key)
	} else if len(c.entries) >= c.capacity {
		victim = c.victim()
		c.remove(victim)
		c.evictions++
		evicted = true
	}
	c.insert(key, &e)
	return victim, evicted
}

// Delete removes the entry for key.
func (c *Cache) Delete(key models.CacheKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	c.remove(key)
	return true
}

// Clear removes all entries and returns how many were dropped. Counters are kept.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[models.CacheKey]*models.CacheEntry)
	c.index = make(map[bucket]map[models.CacheKey]struct{})
	return n
}

// Entries returns copies of all unexpired entries, oldest first.
func (c *Cache) Entries() []models.CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		if c.expired(e) {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Fingerprint.String() < out[j].Fingerprint.String()
	})
	return out
}

// Stats returns cache counters.
func (c *Cache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CacheStats{
		Entries:     int64(len(c.entries)),
		Capacity:    int64(c.capacity),
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

func (c *Cache) expired(e *models.CacheEntry) bool {
	return c.ttl > 0 && c.now().Sub(e.CreatedAt) > c.ttl
}

// victim picks the entry with the lowest hit count, oldest first on ties.
// This is a linear scan over the cache; Put is rare next to lookups.
func (c *Cache) victim() models.CacheKey {
	var best *models.CacheEntry
	for _, e := range c.entries {
		if best == nil || evictsBefore(e, best) {
			best = e
		}
	}
	return best.Key()
}

func evictsBefore(a, b *models.CacheEntry) bool {
	if a.HitCount != b.HitCount {
		return a.HitCount < b.HitCount
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Fingerprint != b.Fingerprint {
		return a.Fingerprint.String() < b.Fingerprint.String()
	}
	return a.Kind < b.Kind
}

func (c *Cache) candidates(fp models.Fingerprint, kind models.AnalysisKind, maxDistance int) []models.CacheKey {
	var keys []models.CacheKey
	if maxDistance > indexedDistance {
		for k := range c.entries {
			if k.Kind == kind {
				keys = append(keys, k)
			}
		}
		return keys
	}

	seen := make(map[models.CacheKey]struct{})
	for pos, val := range fp.Bytes() {
		for k := range c.index[bucket{kind: kind, pos: uint8(pos), val: val}] {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

func (c *Cache) insert(key models.CacheKey, e *models.CacheEntry) {
	c.entries[key] = e
	for pos, val := range key.Fingerprint.Bytes() {
		b := bucket{kind: key.Kind, pos: uint8(pos), val: val}
		set := c.index[b]
		if set == nil {
			set = make(map[models.CacheKey]struct{})
			c.index[b] = set
		}
		set[key] = struct{}{}
	}
}

func (c *Cache) remove(key models.CacheKey) {
	delete(c.entries, key)
	for pos, val := range key.Fingerprint.Bytes() {
		b := bucket{kind: key.Kind, pos: uint8(pos), val: val}
		if set := c.index[b]; set != nil {
			delete(set, key)
			if len(set) == 0 {
				delete(c.index, b)
			}
		}
	}
}
