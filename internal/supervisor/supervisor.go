// Package supervisor maintains the dynamic fleet of per-destination
// tracers: it diffs each sampler tick against the running set, starts
// and stops tracers accordingly, and hands the fleet to the publisher.
package supervisor

import (
	"context"
	"time"

	"github.com/sidn/pathtraced/internal/iputil"
	"github.com/sidn/pathtraced/internal/logging"
	"github.com/sidn/pathtraced/internal/reversedns"
	"github.com/sidn/pathtraced/internal/sampler"
	"github.com/sidn/pathtraced/internal/tracer"
	"github.com/sidn/pathtraced/pkg/hop"
)

var log = logging.Named("path_traceroute")

const defaultUpdateInterval = 10 * time.Second

// startStagger is the inter-start yield between newly created tracers,
// so a burst of new destinations doesn't launch every probe at once.
const startStagger = 50 * time.Millisecond

// Config parameterizes the supervisor loop.
type Config struct {
	UpdateInterval time.Duration
	TracerConfig   tracer.Config
}

func (c Config) withDefaults() Config {
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = defaultUpdateInterval
	}
	return c
}

// Publisher receives the current fleet at the end of every tick. The
// publisher package implements this with no supervisor-side import.
type Publisher interface {
	Post(active []*tracer.Tracer, removed []*tracer.Tracer)
}

// Supervisor owns tracer fleet membership exclusively; no other
// component mutates the tracer map.
type Supervisor struct {
	source    sampler.Source
	names     *reversedns.Store
	publisher Publisher
	cfg       Config

	tracers map[string]*tracer.Tracer
	order   []string
}

// New builds a Supervisor. names may be nil, in which case new tracers
// start with no cname history.
func New(source sampler.Source, names *reversedns.Store, publisher Publisher, cfg Config) *Supervisor {
	return &Supervisor{
		source:    source,
		names:     names,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		tracers:   make(map[string]*tracer.Tracer),
	}
}

// Run executes the tick loop until ctx is cancelled, at which point
// every running tracer is stopped concurrently before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		s.tick(ctx)

		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick runs one full sample -> diff -> dispatch -> publish cycle.
func (s *Supervisor) tick(ctx context.Context) {
	snapshot, err := s.source.Sample(ctx)
	if err != nil {
		log.Error().Err(err).Msg("destination sample failed; skipping this tick")
		return
	}

	if egress, err := iputil.LocalEgressIP(); err == nil {
		delete(snapshot, egress)
	}

	removed := s.stopGone(snapshot)
	s.startNew(ctx, snapshot)
	s.updateRunning(snapshot)

	s.publisher.Post(s.activeTracers(), removed)
}

// stopGone stops and removes every tracer whose destination is no
// longer present in the fresh snapshot, returning the stopped tracers.
func (s *Supervisor) stopGone(snapshot hop.DestinationSnapshot) []*tracer.Tracer {
	var removed []*tracer.Tracer
	kept := s.order[:0]
	for _, dest := range s.order {
		if _, ok := snapshot[dest]; ok {
			kept = append(kept, dest)
			continue
		}
		tr := s.tracers[dest]
		tr.Stop()
		removed = append(removed, tr)
		delete(s.tracers, dest)
	}
	s.order = kept
	return removed
}

// startNew creates and starts a tracer for every destination in the
// snapshot that isn't already running, staggering starts.
func (s *Supervisor) startNew(ctx context.Context, snapshot hop.DestinationSnapshot) {
	for dest, ports := range snapshot {
		if _, ok := s.tracers[dest]; ok {
			continue
		}
		var cnames []string
		if s.names != nil {
			cnames = s.names.Lookup(dest)
		}
		tr := tracer.New(dest, ports, cnames, s.cfg.TracerConfig)
		tr.Start(ctx)
		s.tracers[dest] = tr
		s.order = append(s.order, dest)
		time.Sleep(startStagger)
	}
}

// updateRunning refreshes the dports of every already-running tracer
// to the current snapshot value.
func (s *Supervisor) updateRunning(snapshot hop.DestinationSnapshot) {
	for dest, ports := range snapshot {
		if tr, ok := s.tracers[dest]; ok {
			tr.SetDPorts(ports)
		}
	}
}

func (s *Supervisor) activeTracers() []*tracer.Tracer {
	active := make([]*tracer.Tracer, 0, len(s.order))
	for _, dest := range s.order {
		active = append(active, s.tracers[dest])
	}
	return active
}

// shutdown stops every running tracer concurrently and logs the total
// time taken, per the cancellation contract of the tick loop.
func (s *Supervisor) shutdown() {
	start := time.Now()
	done := make(chan struct{}, len(s.order))
	for _, dest := range s.order {
		tr := s.tracers[dest]
		go func(tr *tracer.Tracer) {
			tr.Stop()
			done <- struct{}{}
		}(tr)
	}
	for range s.order {
		<-done
	}
	log.Info().Dur("elapsed", time.Since(start)).Int("count", len(s.order)).Msg("supervisor shutdown complete")
	s.tracers = make(map[string]*tracer.Tracer)
	s.order = nil
}
