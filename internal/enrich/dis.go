package enrich

import (
	"context"
	"net"
	"strings"
)

// disPrefix is the custom reverse-DNS TXT convention operators use to
// advertise a per-hop information endpoint: "v=DIS1 ip=<addr> ...".
const disPrefix = "v=DIS1 "

// DISLookup queries the hop's reverse-DNS name for a DIS TXT record.
type DISLookup struct {
	resolver *net.Resolver
}

// NewDISLookup builds a DISLookup using the default resolver.
func NewDISLookup() *DISLookup {
	return NewDISLookupWithResolver(net.DefaultResolver)
}

// NewDISLookupWithResolver builds a DISLookup against a caller-supplied
// resolver, for the --our_resolver startup override.
func NewDISLookupWithResolver(resolver *net.Resolver) *DISLookup {
	return &DISLookup{resolver: resolver}
}

// Lookup returns the "ip" field of the DIS record for ip's reverse-DNS
// name, or "" if none is found. net.Resolver.LookupTXT already joins the
// strings of a multi-string TXT record with no separator; each record's
// runs of whitespace are then collapsed to single spaces before
// inspection. No space is inserted between the joined strings.
func (l *DISLookup) Lookup(ctx context.Context, ip net.IP) string {
	name := ptrName(ip)
	if name == "" {
		return ""
	}

	records, err := l.resolver.LookupTXT(ctx, name)
	if err != nil {
		return ""
	}

	for _, rec := range records {
		joined := strings.Join(strings.Fields(rec), " ")
		if !strings.HasPrefix(joined, disPrefix) {
			continue
		}
		if ip, ok := parseDISFields(joined[len(disPrefix):]); ok {
			return ip
		}
	}
	return ""
}

// parseDISFields parses the space-separated k=v pairs following the
// "v=DIS1 " prefix and returns the "ip" field, if present.
func parseDISFields(rest string) (string, bool) {
	for _, kv := range strings.Fields(rest) {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k == "ip" {
			return v, true
		}
	}
	return "", false
}
