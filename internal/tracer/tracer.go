// Package tracer runs the periodic per-destination probing loop: protocol
// cycling, packet-loss merge, change detection and failure back-off.
package tracer

import (
	"context"
	"sync"
	"time"

	"github.com/sidn/pathtraced/internal/enrich"
	"github.com/sidn/pathtraced/internal/iputil"
	"github.com/sidn/pathtraced/internal/logging"
	"github.com/sidn/pathtraced/internal/traceroute"
	"github.com/sidn/pathtraced/pkg/hop"
)

var log = logging.Named("path_traceroute.tracer")

// Config bounds the periodic loop's behavior; every field has a
// production default applied by New when left zero.
type Config struct {
	TraceInterval time.Duration
	MaxHops       int
	ProbeTimeout  time.Duration
	Giveup        int
	OnlyChanges   bool
	// IPv6 selects the IPv6 command line and capability set. New sets it
	// from the destination's address family, overriding any caller value.
	IPv6 bool

	// ForceProtocol pins every trace to a single protocol instead of
	// cycling through the destination's full capability set. Ignored if
	// the destination doesn't support it.
	ForceProtocol traceroute.Protocol
}

const (
	defaultTraceInterval = 5 * time.Second
	defaultMaxHops       = 30
	defaultProbeTimeout  = 3 * time.Second
)

func (c Config) withDefaults() Config {
	if c.TraceInterval <= 0 {
		c.TraceInterval = defaultTraceInterval
	}
	if c.MaxHops <= 0 {
		c.MaxHops = defaultMaxHops
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.Giveup <= 0 {
		c.Giveup = traceroute.DefaultGiveup
	}
	return c
}

// Tracer owns one destination's probing history and failure state. The
// supervisor owns its lifecycle (start/stop); its dports field is
// updated in place by the supervisor between ticks (cnames is fixed at
// New), and its history is read by the publisher, guarded by mu.
type Tracer struct {
	destination string
	driver      traceroute.Driver
	caps        traceroute.Capabilities
	cfg         Config
	pool        *enrich.Pool
	runner      *traceroute.Runner
	clock       iputil.Clock

	mu      sync.Mutex
	dports  hop.PortSet
	cnames  []string
	history []hop.TraceRecord

	lastAccepted []hop.Hop
	lastDports   hop.PortSet
	protoCycle   []traceroute.Protocol
	failcount    int
	backoffUntil int64

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Tracer for destination, using the current platform's
// traceroute driver and privilege level to determine its capability set.
func New(destination string, dports hop.PortSet, cnames []string, cfg Config) *Tracer {
	cfg.IPv6 = iputil.ValidIP(destination, iputil.FamilyV6)
	driver := traceroute.Current()
	root := traceroute.IsPrivileged()
	caps := driver.Capabilities(root, cfg.IPv6)

	protoCycle := caps.Ordered()
	if cfg.ForceProtocol != "" {
		if caps.Has(cfg.ForceProtocol) {
			protoCycle = []traceroute.Protocol{cfg.ForceProtocol}
		} else {
			log.Warn().Str("destination", destination).Str("protocol", string(cfg.ForceProtocol)).
				Msg("forced protocol unsupported for this destination; falling back to the full cycle")
		}
	}

	return &Tracer{
		destination: destination,
		driver:      driver,
		caps:        caps,
		cfg:         cfg.withDefaults(),
		pool:        enrich.NewPool(1),
		runner:      &traceroute.Runner{},
		clock:       iputil.RealClock,
		dports:      dports.Clone(),
		cnames:      append([]string(nil), cnames...),
		protoCycle:  protoCycle,
	}
}

// Destination reports the IP this tracer probes.
func (t *Tracer) Destination() string { return t.destination }

// SetDPorts installs the supervisor's current port snapshot for this
// destination; called once per tick for every already-running tracer.
func (t *Tracer) SetDPorts(dports hop.PortSet) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dports = dports.Clone()
}

// History returns a snapshot of the trace records accepted so far.
func (t *Tracer) History() []hop.TraceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]hop.TraceRecord, len(t.history))
	copy(out, t.history)
	return out
}

// Start launches the periodic loop as a background goroutine. Exactly
// one loop runs per Tracer; calling Start twice is a programming error.
func (t *Tracer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(ctx)
}

// Stop kills any in-flight probe subprocess, cancels the loop and waits
// for it to exit.
func (t *Tracer) Stop() {
	t.runner.Kill()
	if t.cancel != nil {
		t.cancel()
	}
	if t.done != nil {
		<-t.done
	}
}

func (t *Tracer) run(ctx context.Context) {
	defer close(t.done)
	defer t.appendSentinel()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := t.clock().Unix()
		if now < t.backoffUntil {
			if !t.sleep(ctx, t.cfg.TraceInterval) {
				return
			}
			continue
		}

		proto := t.nextProtocol()
		start := t.clock().Unix()
		hops, err := t.oneTrace(ctx, proto)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("destination", t.destination).Msg("trace failed")
			t.accountFailure(now)
			if !t.sleep(ctx, t.cfg.TraceInterval) {
				return
			}
			continue
		}

		t.acceptTrace(start, hops)

		if !t.sleep(ctx, t.cfg.TraceInterval) {
			return
		}
	}
}

// oneTrace runs a single traceroute on the dedicated single-worker pool
// so the cooperative scheduler is never blocked by the subprocess.
func (t *Tracer) oneTrace(ctx context.Context, proto traceroute.Protocol) ([]hop.Hop, error) {
	var hops []hop.Hop
	var traceErr error
	err := t.pool.Run(ctx, func() error {
		probeTimeoutSeconds := int(t.cfg.ProbeTimeout / time.Second)
		if probeTimeoutSeconds <= 0 {
			probeTimeoutSeconds = 1
		}
		hops, traceErr = t.runner.Trace(ctx, t.driver, t.destination, proto, t.cfg.IPv6, t.cfg.MaxHops, probeTimeoutSeconds, t.cfg.Giveup)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hops, traceErr
}

// nextProtocol rotates the protocol cycle: pop the front, push it to the
// back, return it.
func (t *Tracer) nextProtocol() traceroute.Protocol {
	if len(t.protoCycle) == 0 {
		return traceroute.ICMP
	}
	proto := t.protoCycle[0]
	t.protoCycle = append(t.protoCycle[1:], proto)
	return proto
}

// acceptTrace applies the filter rules, merge law and change detection,
// then appends to history (or not) and updates failure accounting.
func (t *Tracer) acceptTrace(start int64, hops []hop.Hop) {
	now := t.clock().Unix()

	if hopsAllMissing(hops) || len(hops) == t.cfg.MaxHops-1 || (len(hops) > 0 && hops[len(hops)-1].IsMissing()) {
		t.accountFailure(now)
		return
	}

	merged := hops
	t.mu.Lock()
	if len(t.lastAccepted) == len(hops) {
		merged = hop.Merge(t.lastAccepted, hops)
	}
	previous := t.lastAccepted
	lastDports := t.lastDports
	dports := t.dports.Clone()
	cnames := append([]string(nil), t.cnames...)
	t.mu.Unlock()

	change := previous == nil || !hop.HopsEqual(previous, merged)
	if lastDports != nil && !dports.Equal(lastDports) {
		change = true
	}

	record := hop.TraceRecord{
		StartTime:   start,
		Destination: t.destination,
		Change:      change,
		Duration:    float64(now - start),
		Hops:        merged,
		Traceback:   "",
		DPorts:      dports,
		CNames:      cnames,
	}

	t.mu.Lock()
	t.lastAccepted = merged
	t.lastDports = dports
	if !t.cfg.OnlyChanges || change {
		t.history = append(t.history, record)
	}
	t.mu.Unlock()

	t.clearFailure()
}

func hopsAllMissing(hops []hop.Hop) bool {
	for _, h := range hops {
		if !h.IsMissing() {
			return false
		}
	}
	return true
}

// accountFailure increments failcount and, once it exceeds one, arms a
// back-off proportional to the trace interval and the failure count.
func (t *Tracer) accountFailure(now int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failcount++
	if t.failcount > 1 {
		t.backoffUntil = now + int64(t.cfg.TraceInterval/time.Second)*int64(t.failcount)
	}
}

func (t *Tracer) clearFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failcount = 0
	t.backoffUntil = 0
}

// appendSentinel appends a sentinel trace record with empty hops on
// loop exit, whether by cancellation or a clean stop, so the publisher
// can emit a closing event for this destination.
func (t *Tracer) appendSentinel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, hop.TraceRecord{
		StartTime:   t.clock().Unix(),
		Destination: t.destination,
		Change:      true,
		Duration:    0,
		Hops:        nil,
		Traceback:   "",
		DPorts:      t.dports.Clone(),
		CNames:      append([]string(nil), t.cnames...),
	})
}

func (t *Tracer) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
