package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/sidn/pathtraced/internal/sampler"
	"github.com/sidn/pathtraced/internal/tracer"
	"github.com/sidn/pathtraced/pkg/hop"
)

type fakePublisher struct {
	active  []*tracer.Tracer
	removed []*tracer.Tracer
	calls   int
}

func (f *fakePublisher) Post(active, removed []*tracer.Tracer) {
	f.active = active
	f.removed = removed
	f.calls++
}

// A long trace interval keeps the tracer's background loop from
// retrying a (necessarily absent, in a test environment) traceroute
// binary more than once while the test is running.
func quietTracerConfig() tracer.Config {
	return tracer.Config{TraceInterval: time.Hour}
}

func TestSupervisorTickStartsNewDestinations(t *testing.T) {
	source := sampler.NewMockSource(
		hop.DestinationSnapshot{"8.8.8.8": hop.NewPortSet("443")},
	)
	pub := &fakePublisher{}
	sup := New(source, nil, pub, Config{UpdateInterval: time.Hour, TracerConfig: quietTracerConfig()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.tick(ctx)

	if pub.calls != 1 {
		t.Fatalf("Post called %d times, want 1", pub.calls)
	}
	if len(pub.active) != 1 || pub.active[0].Destination() != "8.8.8.8" {
		t.Fatalf("active = %v, want a single tracer for 8.8.8.8", pub.active)
	}
	if len(pub.removed) != 0 {
		t.Errorf("removed = %v, want none on the first tick", pub.removed)
	}

	for _, tr := range sup.tracers {
		tr.Stop()
	}
}

func TestSupervisorTickStopsGoneDestinations(t *testing.T) {
	source := sampler.NewMockSource(
		hop.DestinationSnapshot{"8.8.8.8": hop.NewPortSet("443")},
		hop.DestinationSnapshot{},
	)
	pub := &fakePublisher{}
	sup := New(source, nil, pub, Config{UpdateInterval: time.Hour, TracerConfig: quietTracerConfig()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.tick(ctx)
	sup.tick(ctx)

	if len(pub.active) != 0 {
		t.Errorf("active = %v, want none after the destination disappears", pub.active)
	}
	if len(pub.removed) != 1 || pub.removed[0].Destination() != "8.8.8.8" {
		t.Fatalf("removed = %v, want the stopped 8.8.8.8 tracer", pub.removed)
	}
	if len(sup.tracers) != 0 || len(sup.order) != 0 {
		t.Error("supervisor should have no tracked tracers left")
	}
}

func TestSupervisorTickIsIdempotentOnUnchangedSnapshot(t *testing.T) {
	snap := hop.DestinationSnapshot{"8.8.8.8": hop.NewPortSet("443")}
	source := sampler.NewMockSource(snap, snap, snap)
	pub := &fakePublisher{}
	sup := New(source, nil, pub, Config{UpdateInterval: time.Hour, TracerConfig: quietTracerConfig()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.tick(ctx)
	first := sup.tracers["8.8.8.8"]
	sup.tick(ctx)
	sup.tick(ctx)

	if len(pub.removed) != 0 {
		t.Errorf("removed = %v, want none across unchanged ticks", pub.removed)
	}
	if len(sup.tracers) != 1 || sup.tracers["8.8.8.8"] != first {
		t.Error("an unchanged snapshot must not replace the existing tracer")
	}

	for _, tr := range sup.tracers {
		tr.Stop()
	}
}
