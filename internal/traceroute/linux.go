package traceroute

import "strconv"

var (
	linuxNonRootCapabilities = NewCapabilities(UDP)
	linuxRootCapabilities    = NewCapabilities(ICMP, UDP, TCP)
)

// Linux targets the Linux iputils/traceroute implementation, whose
// non-root capability set is narrower than BSD's (no raw-socket icmp/tcp
// without CAP_NET_RAW) and which has no gre support at all.
type Linux struct{}

func (Linux) Capabilities(root bool, ipv6 bool) Capabilities {
	caps := linuxNonRootCapabilities
	if root {
		caps = linuxRootCapabilities
	}
	if ipv6 {
		caps = intersect(caps, ipv6Allowed)
	}
	return caps
}

func (Linux) BuildCommand(host string, proto Protocol, ipv6 bool, maxHops int, probeTimeout int) (string, []string) {
	args := []string{"-n", "-q1"}
	if ipv6 {
		args = append(args, "-6")
	}
	switch proto {
	case ICMP:
		args = append(args, "-I")
	case TCP:
		args = append(args, "-T")
	default:
		// udp is the Linux default probe method; unsupported protocols
		// (gre) silently fall back to it too.
	}
	args = append(args,
		"-w", strconv.Itoa(probeTimeout),
		"-m", strconv.Itoa(maxHops),
		host,
	)
	return "traceroute", args
}

// HeaderLines: Linux traceroute(8) prints one banner line
// ("traceroute to host (ip), N hops max, ...") before hop lines.
func (Linux) HeaderLines() int { return 1 }

func (Linux) ParseLine(line string) (addr string, missing bool, ok bool) {
	return parseStandardLine(line)
}

var _ Driver = Linux{}
