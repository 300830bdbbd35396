package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sidn/pathtraced/internal/enrich"
	"github.com/sidn/pathtraced/internal/publisher"
	"github.com/sidn/pathtraced/internal/reversedns"
	"github.com/sidn/pathtraced/internal/rpki"
	"github.com/sidn/pathtraced/internal/sampler"
	"github.com/sidn/pathtraced/internal/supervisor"
	"github.com/sidn/pathtraced/internal/tracer"
	"github.com/sidn/pathtraced/internal/traceroute"
)

// Config holds the parsed top-level CLI flags.
type Config struct {
	IPv4Only    bool
	Mock        bool
	OurResolver string
	QueryLog    string
	TraceProto  string
	ListenAddr  string
}

// daemon bundles the running components the run/mcp subcommands share.
type daemon struct {
	supervisor *supervisor.Supervisor
	publisher  *publisher.Publisher
	enricher   *enrich.Enricher
	server     *publisher.Server
	names      *reversedns.Store
}

// buildDaemon resolves every top-level flag into a wired supervisor,
// publisher and enricher, performing the startup DNS health check
// along the way. It does not start anything; callers run the returned
// pieces concurrently.
func buildDaemon(ctx context.Context, cfg Config) (*daemon, error) {
	resolver, err := resolveDNS(ctx, cfg.OurResolver)
	if err != nil {
		return nil, fmt.Errorf("no usable DNS resolver at startup: %w", err)
	}

	roaValidator, err := rpki.NewValidator(ctx, "", rpki.DefaultURL)
	if err != nil {
		log.Warn().Err(err).Msg("ROA validator unavailable at startup; every hop will report roa=invalid")
		roaValidator = nil
	}

	enricher := enrich.NewWithResolver(roaValidator, resolver)

	names := reversedns.NewStore()
	if cfg.QueryLog != "" {
		go func() {
			if err := reversedns.Follow(ctx, cfg.QueryLog, names); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Str("path", cfg.QueryLog).Msg("query log tailer stopped")
			}
		}()
	}

	var source sampler.Source
	if cfg.Mock {
		source = sampler.NewMockSource()
	} else {
		source = sampler.NewLive(cfg.IPv4Only)
	}

	pub := publisher.New(enricher)

	tracerCfg := tracer.Config{IPv6: !cfg.IPv4Only}
	if cfg.TraceProto != "" {
		tracerCfg.ForceProtocol = traceroute.Protocol(cfg.TraceProto)
	}

	sup := supervisor.New(source, names, pub, supervisor.Config{TracerConfig: tracerCfg})

	addr := cfg.ListenAddr
	if addr == "" {
		addr = publisher.DefaultAddr
	}
	server := publisher.NewServer(addr, pub)

	return &daemon{supervisor: sup, publisher: pub, enricher: enricher, server: server, names: names}, nil
}

// resolveDNS builds the resolver the enrichment pipeline will use and
// verifies it actually works before the daemon commits to starting.
// ourResolver, when set, is a "host:port" DNS server address the
// resolver dials directly instead of the system default.
func resolveDNS(ctx context.Context, ourResolver string) (*net.Resolver, error) {
	resolver := net.DefaultResolver
	if ourResolver != "" {
		addr := ourResolver
		resolver = &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
				d := net.Dialer{Timeout: 5 * time.Second}
				return d.DialContext(ctx, network, addr)
			},
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := resolver.LookupHost(checkCtx, "localhost"); err != nil {
		return nil, err
	}
	return resolver, nil
}
