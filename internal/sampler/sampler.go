// Package sampler snapshots the local host's active outbound connections,
// grouped by remote IP, for the supervisor to diff against the running
// tracer fleet.
package sampler

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	gopsnet "github.com/shirou/gopsutil/v3/net"

	"github.com/sidn/pathtraced/internal/iputil"
	"github.com/sidn/pathtraced/internal/logging"
	"github.com/sidn/pathtraced/pkg/hop"
)

var log = logging.Named("path_traceroute")

// ConnectionListError is returned when the native and netstat-fallback
// paths both fail to produce a connection list.
type ConnectionListError struct {
	Cause error
}

func (e *ConnectionListError) Error() string {
	return fmt.Sprintf("sampler: no usable connection source: %v", e.Cause)
}

func (e *ConnectionListError) Unwrap() error { return e.Cause }

// Source produces a destination snapshot, once per supervisor tick.
// Live is the production source; MockSource (mock.go) is the test
// collaborator.
type Source interface {
	Sample(ctx context.Context) (hop.DestinationSnapshot, error)
}

// Live is the default Source: native connection table first, netstat
// subprocess fallback second.
type Live struct {
	IPv4Only bool
}

// NewLive builds the default connection sampler.
func NewLive(ipv4Only bool) *Live {
	return &Live{IPv4Only: ipv4Only}
}

// Sample returns a fresh destination snapshot.
func (l *Live) Sample(ctx context.Context) (hop.DestinationSnapshot, error) {
	snap, err := l.sampleNative(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("native connection sampling failed, falling back to netstat")
		snap, err = l.sampleNetstat(ctx)
		if err != nil {
			return nil, &ConnectionListError{Cause: err}
		}
	}
	return filterSnapshot(snap, l.IPv4Only)
}

func (l *Live) sampleNative(ctx context.Context) (hop.DestinationSnapshot, error) {
	kind := "inet"
	if l.IPv4Only {
		kind = "inet4"
	}

	conns, err := gopsnet.ConnectionsWithContext(ctx, kind)
	if err != nil {
		return nil, err
	}

	snap := make(hop.DestinationSnapshot)
	for _, c := range conns {
		if c.Status != "ESTABLISHED" {
			continue
		}
		if c.Raddr.IP == "" {
			continue
		}
		addPort(snap, c.Raddr.IP, strconv.FormatUint(uint64(c.Raddr.Port), 10))
	}
	return snap, nil
}

// portDelimiter returns the column-5 netstat port delimiter for the
// running platform: ':' on Linux, '.' on macOS/BSD.
func portDelimiter() byte {
	if runtime.GOOS == "linux" {
		return ':'
	}
	return '.'
}

func (l *Live) sampleNetstat(ctx context.Context) (hop.DestinationSnapshot, error) {
	args := []string{"-n", "-a"}
	if runtime.GOOS == "linux" {
		args = append(args, "-W")
	}
	cmd := exec.CommandContext(ctx, "netstat", args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	snap := make(hop.DestinationSnapshot)
	delim := portDelimiter()
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 {
			continue
		}
		if !strings.Contains(strings.ToUpper(fields[len(fields)-1]), "ESTABLISHED") {
			continue
		}
		ip, port, ok := splitRemoteColumn(fields[4], delim)
		if !ok {
			continue
		}
		addPort(snap, ip, port)
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// splitRemoteColumn splits netstat's "ip<delim>port" column, stripping
// a '%'-delimited IPv6 scope suffix from the address part.
func splitRemoteColumn(column string, delim byte) (ip, port string, ok bool) {
	idx := strings.LastIndexByte(column, delim)
	if idx < 0 {
		return "", "", false
	}
	ip, port = column[:idx], column[idx+1:]
	if scope := strings.IndexByte(ip, '%'); scope >= 0 {
		ip = ip[:scope]
	}
	if ip == "" || port == "" {
		return "", "", false
	}
	return ip, port, true
}

func addPort(snap hop.DestinationSnapshot, ip, port string) {
	set, ok := snap[ip]
	if !ok {
		set = hop.NewPortSet()
		snap[ip] = set
	}
	set[port] = struct{}{}
}

// filterSnapshot applies the loopback/link-local/v4-mapped-v6 exclusion,
// restricts to IPv4 destinations when ipv4Only is set (this runs
// regardless of which sampling path produced raw, so the netstat
// fallback honors the same restriction as the native path), and
// validates every remaining key is a syntactically valid IP. A non-IP
// key surviving this far is a fatal sampler error.
func filterSnapshot(raw hop.DestinationSnapshot, ipv4Only bool) (hop.DestinationSnapshot, error) {
	out := make(hop.DestinationSnapshot, len(raw))
	for ip, ports := range raw {
		if iputil.Excluded(ip) {
			continue
		}
		if !iputil.ValidIP(ip, iputil.FamilyAny) {
			log.Error().Str("key", ip).Interface("snapshot", raw).Msg("non-IP key in destination snapshot")
			return nil, fmt.Errorf("sampler: non-IP key %q in destination snapshot", ip)
		}
		if ipv4Only && !iputil.ValidIP(ip, iputil.FamilyV4) {
			continue
		}
		out[ip] = ports
	}
	return out, nil
}
