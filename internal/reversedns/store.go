// Package reversedns holds the bounded, recency-ordered map of
// destination IP to CNAME chain, fed by the dnsmasq-log tailer.
package reversedns

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Capacity is the maximum number of IP -> CNAME-chain entries retained.
const Capacity = 5000

// Store is the reverse-name store of spec.md §4.C: re-inserting an IP
// moves it to the MRU end, and inserting past capacity evicts the LRU
// entry.
type Store struct {
	cache *lru.Cache[string, []string]
}

// NewStore builds an empty store bounded to Capacity entries.
func NewStore() *Store {
	return newStoreWithCapacity(Capacity)
}

func newStoreWithCapacity(n int) *Store {
	cache, err := lru.New[string, []string](n)
	if err != nil {
		// Only returns an error for a non-positive size, which callers
		// never pass.
		panic(err)
	}
	return &Store{cache: cache}
}

// Record stores the CNAME chain learned for ip, moving it to the MRU end.
func (s *Store) Record(ip string, chain []string) {
	s.cache.Add(ip, chain)
}

// Lookup returns the CNAME chain recorded for ip, or an empty slice if
// none is known.
func (s *Store) Lookup(ip string) []string {
	chain, ok := s.cache.Get(ip)
	if !ok {
		return nil
	}
	return chain
}

// Len reports the current number of entries.
func (s *Store) Len() int {
	return s.cache.Len()
}
