// Package publisher fans out tracer fleet history to websocket
// subscribers, each with its own dedupe bookkeeping and its own 1s
// delta-push loop.
package publisher

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sidn/pathtraced/internal/enrich"
	"github.com/sidn/pathtraced/internal/logging"
	"github.com/sidn/pathtraced/internal/tracer"
	"github.com/sidn/pathtraced/pkg/hop"
)

var log = logging.Named("path_traceroute.websocket_server")

const pushInterval = 1 * time.Second

// DefaultCacheTTL mirrors the hop enricher's default, used when a
// subscriber loop resolves hop enrichment records.
const DefaultCacheTTL = enrich.DefaultCacheTTL

// Sender is the minimal surface a subscriber transport must provide;
// wsSender (server.go) adapts a *websocket.Conn to it by sending every
// frame as a TextMessage, letting tests substitute an in-memory fake.
type Sender interface {
	Send(frame []byte) error
	Close() error
}

// removalEvent records one supervisor-reported tracer removal so every
// subscriber (regardless of when it joined or last polled) observes it
// exactly once.
type removalEvent struct {
	tr *tracer.Tracer
}

// Publisher holds the current fleet and the append-only removal log
// every subscriber reads from independently.
type Publisher struct {
	enricher *enrich.Enricher

	mu       sync.Mutex
	active   []*tracer.Tracer
	removals []removalEvent
}

// New builds a Publisher backed by the given enricher.
func New(enricher *enrich.Enricher) *Publisher {
	return &Publisher{enricher: enricher}
}

// Post implements supervisor.Publisher: it replaces the tracked fleet
// and appends any newly removed tracers to the removal log.
func (p *Publisher) Post(active []*tracer.Tracer, removed []*tracer.Tracer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = active
	for _, tr := range removed {
		p.removals = append(p.removals, removalEvent{tr: tr})
	}
}

// Active returns the publisher's current fleet snapshot, safe for
// concurrent use by introspection callers outside the push loop.
func (p *Publisher) Active() []*tracer.Tracer {
	active, _ := p.snapshot()
	return active
}

func (p *Publisher) snapshot() ([]*tracer.Tracer, []removalEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	active := make([]*tracer.Tracer, len(p.active))
	copy(active, p.active)
	removals := make([]removalEvent, len(p.removals))
	copy(removals, p.removals)
	return active, removals
}

// subscriberState is the per-connection publication bookkeeping of
// spec.md §3: for each destination, the set of start_times already
// pushed.
type subscriberState struct {
	seen           map[string]map[int64]bool
	removalCursor  int
	sentFirstFrame bool
}

func newSubscriberState() *subscriberState {
	return &subscriberState{seen: make(map[string]map[int64]bool)}
}

// Subscribe registers conn as a new subscriber and runs its push loop
// until ctx is cancelled or the connection errors. It returns once the
// loop exits, so callers typically invoke it in its own goroutine.
func (p *Publisher) Subscribe(ctx context.Context, conn Sender) {
	id := uuid.NewString()
	state := newSubscriberState()
	log.Info().Str("subscriber", id).Msg("subscriber connected")
	defer log.Info().Str("subscriber", id).Msg("subscriber disconnected")

	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()

	for {
		if err := p.tick(conn, state); err != nil {
			log.Warn().Str("subscriber", id).Err(err).Msg("dropping subscriber")
			conn.Close()
			return
		}

		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
		}
	}
}

// tick runs one push iteration for a single subscriber.
func (p *Publisher) tick(conn Sender, state *subscriberState) error {
	if !state.sentFirstFrame {
		if err := conn.Send([]byte("clear_cache")); err != nil {
			return err
		}
		state.sentFirstFrame = true
	}

	active, removals := p.snapshot()

	for _, tr := range active {
		dest := tr.Destination()
		for _, record := range tr.History() {
			if state.seen[dest] != nil && state.seen[dest][record.StartTime] {
				continue
			}
			if state.seen[dest] == nil {
				state.seen[dest] = make(map[int64]bool)
			}
			state.seen[dest][record.StartTime] = true

			frame, err := p.encodeFrame(record, true)
			if err != nil {
				return err
			}
			if err := conn.Send(frame); err != nil {
				return err
			}
		}
	}

	for i := state.removalCursor; i < len(removals); i++ {
		tr := removals[i].tr
		hist := tr.History()
		if len(hist) == 0 {
			continue
		}
		last := hist[len(hist)-1]
		frame, err := p.encodeFrame(last, false)
		if err != nil {
			return err
		}
		if err := conn.Send(frame); err != nil {
			return err
		}
		delete(state.seen, tr.Destination())
	}
	state.removalCursor = len(removals)

	return nil
}

// encodeFrame enriches a trace record's hops and serializes the push
// payload with recursively sorted keys and 2-space indentation.
func (p *Publisher) encodeFrame(record hop.TraceRecord, isNew bool) ([]byte, error) {
	trace := p.enrichHops(record.Hops)

	payload := map[string]interface{}{
		"start":       record.StartTime,
		"destination": record.Destination,
		"change":      record.Change,
		"duration":    record.Duration,
		"trace":       trace,
		"dports":      record.DPorts.Sorted(),
		"cnames":      record.CNames,
		"new":         isNew,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.MarshalIndent(generic, "", "  ")
}

// enrichHops resolves every hop concurrently against the shared hop
// enricher, preserving position order in the returned (index,
// enrichment) pairs.
func (p *Publisher) enrichHops(hops []hop.Hop) [][]interface{} {
	result := make([][]interface{}, len(hops))
	var wg sync.WaitGroup
	for i, h := range hops {
		wg.Add(1)
		go func(i int, h hop.Hop) {
			defer wg.Done()
			var e hop.Enrichment
			if !h.IsMissing() {
				e = p.enricher.HopInfo(context.Background(), string(h), DefaultCacheTTL)
			}
			result[i] = []interface{}{i, e}
		}(i, h)
	}
	wg.Wait()
	return result
}
