package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sidn/pathtraced/internal/publisher"
	"github.com/sidn/pathtraced/internal/statusui"
)

// newStatusCmd builds the "status" subcommand: a thin read-only
// websocket client rendering the push feed as a live table. It expects
// a "pathtraced" run to already be serving the feed elsewhere.
func newStatusCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Live operator dashboard over the push channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			return statusui.Run(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "ws://"+publisher.DefaultAddr, "Websocket address of a running pathtraced instance")

	return cmd
}
