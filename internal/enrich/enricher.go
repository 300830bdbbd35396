// Package enrich produces a hop-enrichment record for a hop IP: privacy
// classification, ASN/registry lookup, reverse hostname, domain
// derivation, the custom DIS TXT convention and ROA validation — backed
// by a TTL cache and a bounded worker pool around the synchronous calls.
package enrich

import (
	"context"
	"net"

	"github.com/sidn/pathtraced/internal/iputil"
	"github.com/sidn/pathtraced/internal/logging"
	"github.com/sidn/pathtraced/internal/rpki"
	"github.com/sidn/pathtraced/pkg/hop"
)

var log = logging.Named("path_traceroute.node_info")

// DefaultCacheTTL is the default hop-cache entry lifetime.
const DefaultCacheTTL = 3600

// DefaultPoolSize is the shared enrichment pool's worker count.
const DefaultPoolSize = 5

// Enricher is the production hop_info/get_info implementation.
type Enricher struct {
	cache    *Cache
	pool     *Pool
	registry *RegistryLookup
	hostname *HostnameLookup
	domain   *DomainLookup
	dis      *DISLookup
	roa      *rpki.Validator
}

// New builds an Enricher against the default DNS resolver. roa may be
// nil, in which case every hop is reported roa="invalid" (no validator
// available is treated the same as "not covered").
func New(roa *rpki.Validator) *Enricher {
	return NewWithResolver(roa, net.DefaultResolver)
}

// NewWithResolver builds an Enricher whose DNS-backed sub-lookups
// (registry, hostname, DIS) all use resolver, for the --our_resolver
// startup override. A nil resolver falls back to net.DefaultResolver.
func NewWithResolver(roa *rpki.Validator, resolver *net.Resolver) *Enricher {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Enricher{
		cache:    NewCache(),
		pool:     NewPool(DefaultPoolSize),
		registry: NewRegistryLookupWithResolver(resolver),
		hostname: NewHostnameLookupWithResolver(resolver),
		domain:   NewDomainLookup(),
		dis:      NewDISLookupWithResolver(resolver),
		roa:      roa,
	}
}

// CacheStats exposes the cache size for the MCP introspection surface.
func (e *Enricher) CacheStats() CacheStats { return e.cache.Stats() }

// HopInfo is the public entry point (spec.md §4.E's hop_info): expire
// sweep, cache check, else a pooled get_info call, with a cache insert
// on a cacheable result.
func (e *Enricher) HopInfo(ctx context.Context, ipStr string, cacheTTL int64) hop.Enrichment {
	now := iputil.UTCNow()

	if cached, ok := e.cache.Get(ipStr, now); ok {
		return cached
	}

	var record hop.Enrichment
	err := e.pool.Run(ctx, func() error {
		record = e.getInfo(ctx, ipStr)
		return nil
	})
	if err != nil {
		// Context cancelled while waiting for a pool slot: no usable
		// result this cycle, and nothing worth caching.
		return hop.UnknownEnrichment(ipStr)
	}

	e.cache.Put(ipStr, record, now+cacheTTL)
	return record
}

// getInfo composes the sub-lookups (privacy shortcut, registry,
// hostname, domain, DIS, ROA) into one enrichment record.
func (e *Enricher) getInfo(ctx context.Context, ipStr string) hop.Enrichment {
	if iputil.IsPrivate(ipStr) {
		return hop.PrivateEnrichment(ipStr)
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return hop.UnknownEnrichment(ipStr)
	}

	reg, class, err := e.registry.Lookup(ctx, ip)
	if err != nil {
		if class == classRateLimit {
			log.Warn().Str("ip", ipStr).Msg("registry lookup rate limited")
		}
		return hop.UnknownEnrichment(ipStr)
	}

	hostname := e.hostname.Lookup(ctx, ip)
	domain := e.domain.Lookup(ctx, ip)
	if domain == "" {
		domain = domainFromHostname(ipStr, hostname)
	}
	dis := e.dis.Lookup(ctx, ip)

	roaState := "invalid"
	if e.roa != nil && e.roa.Valid(reg.ASN, reg.CIDR) {
		roaState = "valid"
	}

	return hop.Enrichment{
		IP:          ipStr,
		Hostname:    hostname,
		ASN:         reg.ASN,
		Country:     reg.Country,
		CIDR:        reg.CIDR,
		Description: reg.Description,
		Domain:      domain,
		DIS:         dis,
		ROA:         roaState,
	}
}
