// Package iputil provides the small IP-validation and clock primitives
// shared across the sampler, tracer and enricher.
package iputil

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Family selects which IP version ValidIP requires. FamilyAny accepts
// either.
type Family int

const (
	FamilyAny Family = iota
	FamilyV4
	FamilyV6
)

// ValidIP reports whether address parses as an IP of the requested
// family.
func ValidIP(address string, family Family) bool {
	ip := net.ParseIP(address)
	if ip == nil {
		return false
	}
	switch family {
	case FamilyV4:
		return ip.To4() != nil
	case FamilyV6:
		return ip.To4() == nil
	default:
		return true
	}
}

// IsLoopback reports whether address is one of the loopback addresses
// filtered out of destination snapshots.
func IsLoopback(address string) bool {
	return address == "127.0.0.1" || address == "::1"
}

// IsLinkLocal reports whether address carries the fe80: link-local
// prefix.
func IsLinkLocal(address string) bool {
	return strings.HasPrefix(address, "fe80:")
}

// IsV4MappedV6 reports whether address carries the ::ffff v4-in-v6
// mapping prefix.
func IsV4MappedV6(address string) bool {
	return strings.HasPrefix(address, "::ffff")
}

// Excluded reports whether address should never appear in a destination
// snapshot.
func Excluded(address string) bool {
	return IsLoopback(address) || IsLinkLocal(address) || IsV4MappedV6(address)
}

// IsPrivate reports whether ip is an RFC1918, ULA or link-local
// (169.254/16, fe80::/10) address that should bypass external registry
// lookups entirely.
func IsPrivate(address string) bool {
	ip := net.ParseIP(address)
	if ip == nil {
		return false
	}
	return ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// LocalEgressIP returns the address the kernel would use to reach a
// public destination. No packet is sent: the socket is connected (which
// only binds a local address for UDP) and immediately closed.
func LocalEgressIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("iputil: determine egress IP: %w", err)
	}
	defer conn.Close()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("iputil: unexpected local address type %T", conn.LocalAddr())
	}
	return local.IP.String(), nil
}

// Clock abstracts wall-clock time so tests can inject a fixed now().
type Clock func() time.Time

// RealClock is the production Clock.
func RealClock() time.Time { return time.Now().UTC() }

// UTCNow returns seconds since the epoch.
func UTCNow() int64 {
	return RealClock().Unix()
}
