package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sidn/pathtraced/internal/logging"
)

var log = logging.Named("path_traceroute")

// NewRootCmd builds the pathtraced command tree: the default run
// behavior plus the status and mcp subcommands.
func NewRootCmd() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "pathtraced",
		Short: "Operator-facing network path visibility daemon",
		Long: `pathtraced samples the host's active outbound connections, keeps a
rolling traceroute fleet against every live destination, enriches each
hop with registry/ASN/hostname/ROA data, and pushes the result over a
small websocket feed for operators and tooling to consume.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), cfg)
		},
	}

	bindDaemonFlags(cmd, &cfg)

	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newMCPCmd(&cfg))

	return cmd
}

func bindDaemonFlags(cmd *cobra.Command, cfg *Config) {
	cmd.Flags().BoolVarP(&cfg.IPv4Only, "ipv4_only", "4", false, "Sample and trace IPv4 destinations only")
	cmd.Flags().BoolVarP(&cfg.Mock, "mock", "M", false, "Use a rotating mock destination source instead of live connections")
	cmd.Flags().StringVarP(&cfg.OurResolver, "our_resolver", "R", "", "DNS server address (host:port) to use for all enrichment lookups")
	cmd.Flags().StringVarP(&cfg.QueryLog, "query_log", "Q", "", "Path to a dnsmasq query log to tail for forward-resolution CNAMEs")
	cmd.Flags().StringVarP(&cfg.TraceProto, "traceproto", "t", "", "Force every tracer to a single protocol (icmp|udp|tcp) instead of cycling")
	cmd.Flags().StringVar(&cfg.ListenAddr, "listen", "", "Websocket push channel listen address (default localhost:8765)")
}

// runDaemon starts the full supervisor/publisher/server trio and blocks
// until a termination signal arrives or ctx is otherwise cancelled.
func runDaemon(ctx context.Context, cfg Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	d, err := buildDaemon(ctx, cfg)
	if err != nil {
		return fmt.Errorf("daemon init failed: %w", err)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.supervisor.Run(ctx); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("supervisor: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.server.Run(ctx); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("publisher server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		cancel()
		wg.Wait()
		return err
	}
	wg.Wait()
	log.Info().Msg("pathtraced shut down cleanly")
	return nil
}
