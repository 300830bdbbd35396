package traceroute

import (
	"strconv"
	"strings"
)

// genericCapabilities is {icmp, udp, tcp, gre} regardless of privilege
// level — used by both BSD and Default variants.
var genericCapabilities = NewCapabilities(ICMP, UDP, TCP, GRE)

// BSD targets macOS and the BSDs (Darwin, OpenBSD, FreeBSD).
type BSD struct{}

func (BSD) Capabilities(root bool, ipv6 bool) Capabilities {
	caps := genericCapabilities
	if ipv6 {
		caps = intersect(caps, ipv6Allowed)
	}
	return caps
}

func (BSD) BuildCommand(host string, proto Protocol, ipv6 bool, maxHops int, probeTimeout int) (string, []string) {
	name := "traceroute"
	if ipv6 {
		name = "traceroute6"
	}
	args := []string{
		"-n", "-q1",
		"-P", protoFlag(proto),
		"-w", strconv.Itoa(probeTimeout),
		"-m", strconv.Itoa(maxHops),
		host,
	}
	return name, args
}

func (BSD) HeaderLines() int { return 0 }

func (BSD) ParseLine(line string) (addr string, missing bool, ok bool) {
	return parseStandardLine(line)
}

// protoFlag maps a Protocol to the argument traceroute(8) expects after
// -P.
func protoFlag(p Protocol) string {
	switch p {
	case ICMP:
		return "icmp"
	case TCP:
		return "tcp"
	case GRE:
		return "gre"
	default:
		return "udp"
	}
}

// parseStandardLine parses one line of BSD/Linux traceroute(8) output:
// "<ttl>  <addr> (<addr>)  <rtt> ms" or "<ttl>  * * *" for a missing hop.
// With -q1 there is exactly one probe column.
func parseStandardLine(line string) (addr string, missing bool, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", false, false
	}
	// fields[0] is the hop index.
	second := fields[1]
	if second == "*" {
		return "", true, true
	}
	addr = strings.Trim(second, "()")
	if !looksLikeAddr(addr) {
		return "", false, false
	}
	return addr, false, true
}

func looksLikeAddr(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '.' || r == ':' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}

// Default mirrors BSD: spec.md §4.D requires "a default mirroring BSD"
// for unrecognized platforms. Note: the Python original this was
// distilled from actually defaults unknown platforms to its Linux
// variant (get_traceroute's dispatch dict falls through to
// LinuxTraceroute) — spec.md's stated behavior takes precedence here.
type Default struct{ BSD }

var _ Driver = Default{}
var _ Driver = BSD{}
