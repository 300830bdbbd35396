package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sidn/pathtraced/internal/introspect"
)

// newMCPCmd builds the "mcp" subcommand: it runs the same daemon as the
// default command, plus an MCP stdio server exposing that daemon's
// live fleet and cache state as read-only tools.
func newMCPCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the daemon with an MCP stdio introspection server attached",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithMCP(cmd.Context(), *cfg)
		},
	}
	return cmd
}

func runWithMCP(ctx context.Context, cfg Config) error {
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

	mcpServer := introspect.New(d.publisher, d.enricher)

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

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

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mcpServer.Run(ctx); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("mcp server: %w", err)
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
	log.Info().Msg("pathtraced (mcp) shut down cleanly")
	return nil
}
