package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"straitjacket/internal/runner"
	"straitjacket/internal/watch"
)

// watchCmd reformats files as they are saved
var watchCmd = &cobra.Command{
	Use:   "watch [DIR ...]",
	Short: "Reformat Python files whenever they are written",
	Long: `Watches the given directories (default: the current one) and formats
each Python file once it has been quiet for the configured debounce window.
Directories matched by the exclude patterns are not watched.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		args = []string{"."}
	}

	c := openCache()
	if c != nil {
		defer c.Close()
	}

	r, err := runner.New(cfg, runner.Options{
		Mode:     runner.ModeWrite,
		Quiet:    quiet,
		Verbose:  verbose,
		Upstream: newUpstream(),
		Cache:    c,
		Logger:   logger,
		Stdout:   cmd.OutOrStdout(),
		Stderr:   cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	matcher, err := runner.NewMatcher(cfg.Files)
	if err != nil {
		return err
	}

	w, err := watch.New(args, r, matcher, cfg.GetWatchDebounce(), logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "Watching %d directories. Press Ctrl+C to stop.\n", len(w.WatchedDirs()))
	}
	<-ctx.Done()

	stats := w.Stats()
	if !quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d reformatted, %d unchanged, %d errors.\n",
			stats.Formatted, stats.Unchanged, stats.Errors)
	}
	return nil
}
