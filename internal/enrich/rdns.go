package enrich

import (
	"context"
	"io"
	"net"
	"strings"
	"time"
)

// HostnameLookup performs the reverse-hostname sub-lookup. On failure it
// returns the IP itself, matching a gethostbyaddr-equivalent fallback.
type HostnameLookup struct {
	resolver *net.Resolver
}

// NewHostnameLookup builds a HostnameLookup using the default resolver.
func NewHostnameLookup() *HostnameLookup {
	return NewHostnameLookupWithResolver(net.DefaultResolver)
}

// NewHostnameLookupWithResolver builds a HostnameLookup against a
// caller-supplied resolver, for the --our_resolver startup override.
func NewHostnameLookupWithResolver(resolver *net.Resolver) *HostnameLookup {
	return &HostnameLookup{resolver: resolver}
}

// Lookup returns the cleaned (no trailing dot) reverse hostname for ip,
// or ip.String() if the lookup fails or returns nothing.
func (l *HostnameLookup) Lookup(ctx context.Context, ip net.IP) string {
	names, err := l.resolver.LookupAddr(ctx, ip.String())
	if err != nil || len(names) == 0 {
		return ip.String()
	}
	return strings.TrimSuffix(names[0], ".")
}

// ptrName builds the reverse-DNS query name for ip: N.N.N.N.in-addr.arpa
// for IPv4, the nibble-reversed form for IPv6.
func ptrName(ip net.IP) string {
	if ip4 := ip.To4(); ip4 != nil {
		return formatV4PTR(ip4)
	}
	ip16 := ip.To16()
	if ip16 == nil {
		return ""
	}
	return nibbleReverse(ip16) + ".ip6.arpa"
}

func formatV4PTR(ip4 net.IP) string {
	return net.IPv4(ip4[3], ip4[2], ip4[1], ip4[0]).String() + ".in-addr.arpa"
}

// domainFromHostname derives a domain the way spec.md §4.E's fallback
// does: if hostname equals the IP itself (no reverse record), return the
// IP; otherwise the last two dot-separated labels.
func domainFromHostname(ip, hostname string) string {
	if hostname == ip {
		return ip
	}
	labels := strings.Split(hostname, ".")
	if len(labels) < 2 {
		return hostname
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// DomainLookup performs the WHOIS domain sub-lookup: the primary domain
// source of spec.md §4.E, a plain-text query over TCP port 43 against a
// regional registry's WHOIS server. No WHOIS client library appears
// anywhere in the retrieved pack, so this speaks the protocol directly
// over a net.Dialer connection.
type DomainLookup struct {
	server string
	dialer *net.Dialer
}

// NewDomainLookup builds a DomainLookup against ARIN's public WHOIS
// server with a 5s dial timeout; reads are bounded only by the caller's
// context deadline, if any.
func NewDomainLookup() *DomainLookup {
	return &DomainLookup{
		server: "whois.arin.org:43",
		dialer: &net.Dialer{Timeout: 5 * time.Second},
	}
}

// Lookup returns the registered domain name for ip, or "" if the WHOIS
// record carries none or the lookup fails outright.
func (l *DomainLookup) Lookup(ctx context.Context, ip net.IP) string {
	conn, err := l.dialer.DialContext(ctx, "tcp", l.server)
	if err != nil {
		return ""
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if _, err := conn.Write([]byte(ip.String() + "\r\n")); err != nil {
		return ""
	}

	body, err := io.ReadAll(conn)
	if err != nil && len(body) == 0 {
		return ""
	}
	return parseWhoisDomain(string(body))
}

// parseWhoisDomain scans a raw WHOIS response for the first recognized
// domain-bearing field ("Domain Name:", "domain:"), case-insensitively.
func parseWhoisDomain(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		for _, prefix := range []string{"domain name:", "domain:"} {
			if strings.HasPrefix(lower, prefix) {
				if val := strings.TrimSpace(line[len(prefix):]); val != "" {
					return strings.ToLower(val)
				}
			}
		}
	}
	return ""
}
