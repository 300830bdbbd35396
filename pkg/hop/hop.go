// Package hop defines the shared trace/hop/enrichment data model used by
// the sampler, tracer, enricher and publisher.
package hop

import "sort"

// Hop is one intermediate router address on a path, or Missing if the
// probe for that position got no reply.
type Hop string

// Missing is the zero value of Hop: no responder at this position.
const Missing Hop = ""

// IsMissing reports whether the hop got no reply.
func (h Hop) IsMissing() bool { return h == Missing }

// PortSet is an unordered set of destination port strings. It serializes
// to a JSON array only at the boundary (see Sorted).
type PortSet map[string]struct{}

// NewPortSet builds a PortSet from a slice of port strings.
func NewPortSet(ports ...string) PortSet {
	s := make(PortSet, len(ports))
	for _, p := range ports {
		s[p] = struct{}{}
	}
	return s
}

// Equal reports whether two port sets contain the same ports.
func (s PortSet) Equal(o PortSet) bool {
	if len(s) != len(o) {
		return false
	}
	for p := range s {
		if _, ok := o[p]; !ok {
			return false
		}
	}
	return true
}

// Sorted returns the ports in a deterministic, sorted order.
func (s PortSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of the set.
func (s PortSet) Clone() PortSet {
	out := make(PortSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// DestinationSnapshot maps a remote IP to the set of remote ports seen
// talking to it in an ESTABLISHED state.
type DestinationSnapshot map[string]PortSet

// TraceRecord is one accepted (or sentinel) trace attempt. Immutable once
// produced by a tracer.
type TraceRecord struct {
	StartTime   int64   // UTC seconds
	Destination string  // remote IP
	Change      bool    // differs from previous accepted trace for this destination
	Duration    float64 // seconds
	Hops        []Hop   // ordered, position 1..N
	Traceback   string  // opaque, always empty today
	DPorts      PortSet
	CNames      []string
}

// HopsEqual reports whether two hop sequences are identical, position by
// position.
func HopsEqual(a, b []Hop) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Merge implements the packet-loss merge law: wherever the new trace has
// a missing hop, the previous accepted hop (if any) is substituted. Both
// slices must already be checked to have equal length by the caller.
func Merge(previous, next []Hop) []Hop {
	merged := make([]Hop, len(next))
	for i, h := range next {
		if h.IsMissing() && i < len(previous) {
			merged[i] = previous[i]
		} else {
			merged[i] = h
		}
	}
	return merged
}

// Enrichment is the per-hop metadata record. A field holding "" means
// missing; ASN "*" and "NA" are meaningful (non-cacheable) values, not
// missing markers.
type Enrichment struct {
	IP          string `json:"ip"`
	Hostname    string `json:"hostname"`
	ASN         string `json:"asn"`
	Country     string `json:"country"`
	CIDR        string `json:"cidr"`
	Description string `json:"description"`
	Domain      string `json:"domain"`
	DIS         string `json:"dis"`
	ROA         string `json:"roa"`
}

// CacheableASN reports whether this record's ASN is specific enough to be
// worth caching (hop-cache invariant: only meaningful ASNs are inserted).
func (e Enrichment) CacheableASN() bool {
	return e.ASN != "" && e.ASN != "*" && e.ASN != "NA"
}

// PrivateEnrichment builds the synthetic record used for RFC1918/ULA/
// private-v6 hops, which never reach the external registry.
func PrivateEnrichment(ip string) Enrichment {
	return Enrichment{
		IP:          ip,
		Hostname:    "*",
		ASN:         "private_ip",
		Country:     "*",
		CIDR:        "*",
		Description: "RFC1918/RFC4193",
		Domain:      "*",
		DIS:         "*",
		ROA:         "invalid",
	}
}

// UnknownEnrichment builds the default "*"-valued record produced when an
// external registry lookup fails with a recognized error class.
func UnknownEnrichment(ip string) Enrichment {
	return Enrichment{
		IP:          ip,
		Hostname:    "*",
		ASN:         "*",
		Country:     "*",
		CIDR:        "*",
		Description: "*",
		Domain:      "*",
		DIS:         "*",
		ROA:         "invalid",
	}
}
