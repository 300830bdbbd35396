package traceroute

import (
	"strconv"
	"strings"
)

var windowsCapabilities = NewCapabilities(ICMP)

// Windows wraps tracert.exe, which only ever speaks ICMP.
type Windows struct{}

func (Windows) Capabilities(root bool, ipv6 bool) Capabilities {
	// tracert has no unprivileged/privileged distinction and no IPv6
	// capability beyond icmp; the {icmp} set is intersected with the
	// IPv6-allowed set and is already a subset of it.
	return windowsCapabilities
}

func (Windows) BuildCommand(host string, proto Protocol, ipv6 bool, maxHops int, probeTimeout int) (string, []string) {
	args := []string{"/d"}
	if ipv6 {
		args = append(args, "/6")
	} else {
		args = append(args, "/4")
	}
	args = append(args,
		"/h", strconv.Itoa(maxHops),
		"/w", strconv.Itoa(probeTimeout*1000),
		host,
	)
	return "tracert", args
}

func (Windows) HeaderLines() int { return 0 }

// ParseLine parses one tracert hop line: a leading hop index, the RTT
// columns, then the hop address as the last field. A hop line carrying
// "Request timed out" reports a missing hop; lines without a numeric
// hop index (banner, trailer) are skipped.
func (Windows) ParseLine(line string) (addr string, missing bool, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", false, false
	}
	if _, err := strconv.Atoi(fields[0]); err != nil {
		return "", false, false
	}
	if strings.Contains(line, "Request timed out") {
		return "", true, true
	}
	addr = strings.Trim(fields[len(fields)-1], "[]")
	if !looksLikeAddr(addr) {
		return "", false, false
	}
	return addr, false, true
}

var _ Driver = Windows{}
