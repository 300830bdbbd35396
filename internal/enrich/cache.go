package enrich

import (
	"sync"

	"github.com/sidn/pathtraced/pkg/hop"
)

// CacheStats summarizes the cache for the MCP introspection surface.
type CacheStats struct {
	Size int
}

// Cache is the hop-enrichment TTL cache: a primary map plus an expiry
// index mapping expiry-time -> the hop IPs inserted at that expiry.
// Every key in the primary map has exactly one entry in the expiry
// index; an expired key is removed from both before any read returns
// it; only records with a meaningful ASN are inserted (see
// hop.Enrichment.CacheableASN).
type Cache struct {
	mu      sync.Mutex
	entries map[string]hop.Enrichment
	expiry  map[int64][]string
}

// NewCache builds an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]hop.Enrichment),
		expiry:  make(map[int64][]string),
	}
}

// sweep removes every entry whose expiry time is strictly less than
// now, and drops the now-empty expiry buckets. Caller holds mu.
func (c *Cache) sweep(now int64) {
	for expiresAt, ips := range c.expiry {
		if expiresAt >= now {
			continue
		}
		for _, ip := range ips {
			delete(c.entries, ip)
		}
		delete(c.expiry, expiresAt)
	}
}

// Get sweeps expired entries, then returns the cached record for ip if
// present.
func (c *Cache) Get(ip string, now int64) (hop.Enrichment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweep(now)
	e, ok := c.entries[ip]
	return e, ok
}

// Put inserts e under ip with the given expiry time, provided e's ASN is
// meaningful enough to cache; it is a no-op otherwise.
func (c *Cache) Put(ip string, e hop.Enrichment, expiresAt int64) {
	if !e.CacheableASN() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[ip] = e
	c.expiry[expiresAt] = append(c.expiry[expiresAt], ip)
}

// Stats reports the current cache size.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Size: len(c.entries)}
}
