package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"straitjacket/internal/server"
)

var serveAddr string

// serveCmd runs the blackd-compatible daemon
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve formatting requests over HTTP (blackd protocol)",
	Long: `Starts an HTTP server that formats POSTed source. The request and
response headers follow blackd, so editor plugins written for blackd can
point at this server instead.

Headers:
  X-Protocol-Version           must be 1 if given
  X-Fast-Or-Safe               fast skips the equivalence check
  X-Skip-String-Normalization  true to keep string quotes
  X-Skip-Alignment             true to skip column alignment
  X-Diff                       true to return a unified diff`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(cfg, newUpstream(), logger).ListenAndServe(ctx)
}
