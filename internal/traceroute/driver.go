// Package traceroute wraps the platform traceroute/traceroute6/tracert
// binary: capability detection, command construction, subprocess
// lifecycle and output parsing. It is not a traceroute implementation —
// all probing is delegated to the OS binary.
package traceroute

import "sort"

// Protocol is a hop-probing protocol the OS traceroute binary can use.
type Protocol string

const (
	ICMP Protocol = "icmp"
	UDP  Protocol = "udp"
	TCP  Protocol = "tcp"
	GRE  Protocol = "gre"
)

// preferredOrder is the protocol-cycle seeding order (spec.md §4.G): the
// queue starts with whichever of these the destination supports, in this
// order, then any remaining capabilities.
var preferredOrder = []Protocol{ICMP, UDP, TCP}

// Capabilities is the set of probe protocols usable for a given
// OS/privilege/address-family triple.
type Capabilities map[Protocol]struct{}

// NewCapabilities builds a Capabilities set from a protocol list.
func NewCapabilities(protos ...Protocol) Capabilities {
	c := make(Capabilities, len(protos))
	for _, p := range protos {
		c[p] = struct{}{}
	}
	return c
}

// Has reports whether p is in the set.
func (c Capabilities) Has(p Protocol) bool {
	_, ok := c[p]
	return ok
}

// Ordered returns the capability set as a slice, preferred protocols
// first (icmp, udp, tcp), then any remaining capability in a stable
// (alphabetical) order. This feeds the tracer's protocol-cycle ring.
func (c Capabilities) Ordered() []Protocol {
	out := make([]Protocol, 0, len(c))
	seen := make(map[Protocol]struct{}, len(c))
	for _, p := range preferredOrder {
		if c.Has(p) {
			out = append(out, p)
			seen[p] = struct{}{}
		}
	}
	rest := make([]Protocol, 0)
	for p := range c {
		if _, ok := seen[p]; !ok {
			rest = append(rest, p)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(out, rest...)
}

// ipv6Allowed is intersected into every variant's capability set for an
// IPv6 target (spec.md §4.D: "Intersected with {icmp, udp} for IPv6
// targets").
var ipv6Allowed = NewCapabilities(ICMP, UDP)

// intersect returns the protocols present in both sets.
func intersect(a, b Capabilities) Capabilities {
	out := make(Capabilities)
	for p := range a {
		if b.Has(p) {
			out[p] = struct{}{}
		}
	}
	return out
}

// Driver is one platform's traceroute command-building and
// output-parsing contract. Implementations: BSD, Linux, Windows,
// Default (mirrors BSD, used for unrecognized platforms).
type Driver interface {
	// Capabilities returns the usable protocol set for this platform at
	// the given privilege level and address family.
	Capabilities(root bool, ipv6 bool) Capabilities

	// BuildCommand returns the binary name and argument list for tracing
	// host with proto, bounded to maxHops with a per-hop timeout.
	BuildCommand(host string, proto Protocol, ipv6 bool, maxHops int, probeTimeout int) (name string, args []string)

	// HeaderLines is the number of leading output lines to skip before
	// hop lines begin.
	HeaderLines() int

	// ParseLine extracts a hop address from one line of output, or
	// reports missing=true if the hop produced no responder ('*').
	ParseLine(line string) (addr string, missing bool, ok bool)
}
