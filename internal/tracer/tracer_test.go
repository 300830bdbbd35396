package tracer

import (
	"testing"
	"time"

	"github.com/sidn/pathtraced/internal/traceroute"
	"github.com/sidn/pathtraced/pkg/hop"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestTracer(cfg Config) *Tracer {
	return &Tracer{
		destination: "8.8.8.8",
		cfg:         cfg.withDefaults(),
		clock:       fixedClock(time.Unix(1000, 0)),
		dports:      hop.NewPortSet("443"),
		protoCycle:  []traceroute.Protocol{traceroute.ICMP, traceroute.UDP, traceroute.TCP},
	}
}

func TestNextProtocolRotates(t *testing.T) {
	tr := newTestTracer(Config{})
	seq := []traceroute.Protocol{tr.nextProtocol(), tr.nextProtocol(), tr.nextProtocol(), tr.nextProtocol()}
	want := []traceroute.Protocol{traceroute.ICMP, traceroute.UDP, traceroute.TCP, traceroute.ICMP}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("rotation = %v, want %v", seq, want)
		}
	}
}

func TestAcceptTraceFirstIsChange(t *testing.T) {
	tr := newTestTracer(Config{MaxHops: 30})
	tr.acceptTrace(1000, []hop.Hop{"10.0.0.1", "8.8.8.8"})

	hist := tr.History()
	if len(hist) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(hist))
	}
	if !hist[0].Change {
		t.Error("first accepted trace must have change=true")
	}
}

func TestAcceptTraceMergesPacketLoss(t *testing.T) {
	tr := newTestTracer(Config{MaxHops: 30})
	tr.acceptTrace(1000, []hop.Hop{"10.0.0.1", "10.0.0.2", "8.8.8.8"})
	tr.acceptTrace(1005, []hop.Hop{"10.0.0.1", hop.Missing, "8.8.8.8"})

	hist := tr.History()
	if len(hist) != 2 {
		t.Fatalf("len(history) = %d, want 2 (packet loss should not be filtered by equal-length merge)", len(hist))
	}
	want := []hop.Hop{"10.0.0.1", "10.0.0.2", "8.8.8.8"}
	for i, h := range hist[1].Hops {
		if h != want[i] {
			t.Errorf("merged hops = %v, want %v", hist[1].Hops, want)
		}
	}
	if hist[1].Change {
		t.Error("merged trace identical to the accepted previous hops should not register as a change")
	}
}

func TestAcceptTraceDetectsRealChange(t *testing.T) {
	tr := newTestTracer(Config{MaxHops: 30})
	tr.acceptTrace(1000, []hop.Hop{"10.0.0.1", "10.0.0.2", "8.8.8.8"})
	tr.acceptTrace(1005, []hop.Hop{"10.0.0.1", "10.0.0.9", "8.8.8.8"})

	hist := tr.History()
	if !hist[1].Change {
		t.Error("a genuinely different hop sequence must register as a change")
	}
}

func TestAcceptTraceFiltersAllMissing(t *testing.T) {
	tr := newTestTracer(Config{MaxHops: 30})
	tr.acceptTrace(1000, []hop.Hop{hop.Missing, hop.Missing})

	if len(tr.History()) != 0 {
		t.Error("an all-missing trace must not be appended to history")
	}
}

func TestAcceptTraceFiltersRunawayLength(t *testing.T) {
	tr := newTestTracer(Config{MaxHops: 3})
	tr.acceptTrace(1000, []hop.Hop{"10.0.0.1", "8.8.8.8"}) // len == maxHops-1

	if len(tr.History()) != 0 {
		t.Error("a trace whose length equals max_hops-1 must be treated as runaway and dropped")
	}
}

func TestAcceptTraceFiltersMissingLastHop(t *testing.T) {
	tr := newTestTracer(Config{MaxHops: 30})
	tr.acceptTrace(1000, []hop.Hop{"10.0.0.1", hop.Missing})

	if len(tr.History()) != 0 {
		t.Error("a trace that never reaches the destination must be dropped")
	}
}

func TestAccountFailureArmsBackoffAfterSecondFailure(t *testing.T) {
	tr := newTestTracer(Config{TraceInterval: 5 * time.Second})
	now := tr.clock().Unix()

	tr.accountFailure(now)
	if tr.backoffUntil != 0 {
		t.Errorf("backoffUntil = %d, want 0 after a single failure", tr.backoffUntil)
	}

	tr.accountFailure(now)
	if tr.backoffUntil != now+10 {
		t.Errorf("backoffUntil = %d, want %d after a second consecutive failure", tr.backoffUntil, now+10)
	}
}

func TestClearFailureResetsBackoff(t *testing.T) {
	tr := newTestTracer(Config{TraceInterval: 5 * time.Second})
	tr.accountFailure(1000)
	tr.accountFailure(1000)
	tr.clearFailure()

	if tr.failcount != 0 || tr.backoffUntil != 0 {
		t.Errorf("clearFailure left failcount=%d backoffUntil=%d, want both 0", tr.failcount, tr.backoffUntil)
	}
}

func TestAppendSentinelRecordsEmptyHopsAndCNames(t *testing.T) {
	tr := newTestTracer(Config{})
	tr.cnames = []string{"edge.example.com"}
	tr.appendSentinel()

	hist := tr.History()
	if len(hist) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(hist))
	}
	last := hist[0]
	if last.Hops != nil {
		t.Error("sentinel trace must carry empty hops")
	}
	if !last.Change {
		t.Error("sentinel trace must have change=true")
	}
	if len(last.CNames) != 1 || last.CNames[0] != "edge.example.com" {
		t.Errorf("sentinel cnames = %v, want the tracer's current cnames", last.CNames)
	}
}
