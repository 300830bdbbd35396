package reversedns

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sidn/pathtraced/internal/iputil"
	"github.com/sidn/pathtraced/internal/logging"
)

var log = logging.Named("path_traceroute")

// pollInterval mirrors the original tailer's 0.1s poll loop.
const pollInterval = 100 * time.Millisecond

// queryEvictAge mirrors the original parser's 10s open-query eviction
// window: a query id not closed out within this long is abandoned.
const queryEvictAge = 10 * time.Second

// openQuery accumulates the intermediate CNAME names dnsmasq reported
// for one in-flight query id, in the order they were logged.
type openQuery struct {
	cnames []string
	seenAt time.Time
}

// skippedAnswers are dnsmasq reply/cached terminal values that carry no
// resolvable address and so never close out a chain.
var skippedAnswers = map[string]bool{
	"NXDOMAIN":    true,
	"NODATA":      true,
	"NODATA-IPv6": true,
	"NODATA-IPv4": true,
	"SERVFAIL":    true,
	"0.0.0.0":     true,
	"<HTTPS>":     true,
	"duplicate":   true,
}

// Follow tails a dnsmasq query log at path, feeding every forward
// resolution it observes into store as a CNAME chain. It returns an
// error only if the file cannot be opened or seeked; after that it runs
// until ctx is cancelled, retrying every read error (including EOF)
// after pollInterval.
//
// Grounded on reverse_query_lookup.py's multi-line parser: dnsmasq's
// --log-queries=extra format carries a per-query serial number
// ("<month> <day> <time> dnsmasq[pid]: <query-id> <client>/<port> reply
// <name> is <answer>"). Lines are correlated by that query id, not by
// the literal "<CNAME>" token, since a single query id's chain can
// legitimately pass through several differently-named CNAME hops before
// terminating in an address.
func Follow(ctx context.Context, path string, store *Store) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return err
	}

	reader := bufio.NewReader(f)
	open := make(map[int]*openQuery)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			time.Sleep(pollInterval)
			continue
		}
		now := processLine(strings.TrimSpace(line), open, store)
		evictStaleQueries(open, now)
	}
}

// processLine parses one dnsmasq log line, extending or closing out the
// open query it belongs to. Returns the time used for eviction so the
// caller doesn't need its own clock.
func processLine(line string, open map[int]*openQuery, store *Store) time.Time {
	now := time.Now()

	fields := strings.Fields(line)
	if len(fields) < 10 {
		return now
	}

	queryID, err := strconv.Atoi(fields[4])
	if err != nil {
		return now
	}
	if fields[6] != "reply" && fields[6] != "cached" {
		return now
	}

	name := fields[7]
	answer := fields[9]

	q, ok := open[queryID]
	if !ok {
		q = &openQuery{}
		open[queryID] = q
	}
	q.seenAt = now

	switch {
	case skippedAnswers[answer]:
		// No resolvable address for this query id; leave the chain open
		// in case a later line (duplicate forward, retry) closes it.
	case answer == "<CNAME>":
		q.cnames = append(q.cnames, name)
	default:
		if !iputil.ValidIP(answer, iputil.FamilyAny) {
			break
		}
		chain := append(append([]string{}, q.cnames...), name)
		store.Record(answer, chain)
		log.Debug().Str("ip", answer).Strs("chain", chain).Msg("recorded reverse-query chain")
		delete(open, queryID)
	}

	return now
}

// evictStaleQueries drops open queries that haven't advanced in
// queryEvictAge, matching the original parser's abandoned-query sweep.
func evictStaleQueries(open map[int]*openQuery, now time.Time) {
	for id, q := range open {
		if now.Sub(q.seenAt) > queryEvictAge {
			delete(open, id)
		}
	}
}
