package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"straitjacket/internal/align"
	"straitjacket/internal/cache"
	"straitjacket/internal/config"
	"straitjacket/internal/logging"
	"straitjacket/internal/runner"
	"straitjacket/internal/upstream"
	"straitjacket/internal/version"
)

// Exit status for bad flags, unreadable config and similar usage errors.
const exitUsage = 2

var (
	// Global flags
	configPath string
	verbose    bool
	quiet      bool

	// Formatting flags
	checkFlag               bool
	diffFlag                bool
	colorFlag               bool
	fastFlag                bool
	workers                 int
	skipStringNormalization bool
	skipAlignment           bool
	noCache                 bool

	cfg    *config.Config
	logger *zap.Logger
)

// exitError carries a process exit status out of a command without
// printing anything.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// rootCmd formats the given paths
var rootCmd = &cobra.Command{
	Use:   "sjfmt [flags] SRC ...",
	Short: "sjfmt - black-compatible formatter with vertical alignment",
	Long: `sjfmt formats Python source with an upstream line formatter (such as
black) and then aligns related columns and normalizes string quotes.

Pass "-" to read from stdin and write to stdout.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		start := "."
		if len(args) > 0 && args[0] != runner.StdinPath {
			start = args[0]
		}
		var err error
		cfg, err = loadConfig(cmd, start)
		if err != nil {
			return err
		}

		logger, err = logging.New(cfg.Logging, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if cfg.Logging.Level == "debug" && cfg.Logging.IsCategoryEnabled(string(logging.CategoryEngine)) {
			align.SetTraceLogger(logging.For(logger, logging.CategoryEngine))
		}
		logging.For(logger, logging.CategoryBoot).Debug("config loaded",
			zap.String("path", configPath),
			zap.Strings("upstream", cfg.Upstream.Command),
			zap.Int("workers", cfg.Runner.Workers),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runFormat,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: nearest "+config.FileName+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Report unchanged files and enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print errors")

	rootCmd.Flags().BoolVar(&checkFlag, "check", false, "Don't write files back; exit 1 if any would change")
	rootCmd.Flags().BoolVar(&diffFlag, "diff", false, "Don't write files back; print a diff for each file")
	rootCmd.Flags().BoolVar(&colorFlag, "color", false, "Colorize diff output")
	rootCmd.Flags().BoolVar(&fastFlag, "fast", false, "Skip the token equivalence check")
	rootCmd.Flags().IntVarP(&workers, "workers", "j", 0, "Number of files formatted in parallel (default: one per CPU)")
	rootCmd.Flags().BoolVarP(&skipStringNormalization, "skip-string-normalization", "S", false, "Don't normalize string quotes")
	rootCmd.Flags().BoolVar(&skipAlignment, "skip-alignment", false, "Don't align columns")
	rootCmd.Flags().BoolVar(&noCache, "no-cache", false, "Format every file even if the cache says it is unchanged")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(exitUsage)
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig(cmd *cobra.Command, start string) (*config.Config, error) {
	path := configPath
	if path == "" {
		found, err := config.Find(start)
		if err != nil {
			return nil, err
		}
		path = found
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}

	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Lookup("workers") != nil && flags.Changed("workers") {
		c.Runner.Workers = workers
	}
	if fastFlag {
		c.Engine.Fast = true
	}
	if skipStringNormalization {
		c.Engine.SkipStringNormalization = true
	}
	if skipAlignment {
		c.Engine.SkipAlignment = true
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// openCache opens the formatted-file cache, or returns nil when caching is
// off or unavailable.
func openCache() *cache.Cache {
	if noCache || !cfg.Cache.Enabled {
		return nil
	}
	log := logging.For(logger, logging.CategoryCache)
	path, err := cache.DefaultPath(cfg.Cache.Dir)
	if err != nil {
		log.Warn("cache disabled", zap.Error(err))
		return nil
	}
	c, err := cache.Open(path)
	if err != nil {
		log.Warn("cache disabled", zap.String("path", path), zap.Error(err))
		return nil
	}
	return c
}

func newUpstream() upstream.Formatter {
	return upstream.New(cfg, logging.For(logger, logging.CategoryUpstream))
}

func runFormat(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		if !quiet {
			fmt.Fprintln(cmd.ErrOrStderr(), "No Path provided. Nothing to do 😴")
		}
		return nil
	}

	mode := runner.ModeWrite
	switch {
	case diffFlag:
		mode = runner.ModeDiff
	case checkFlag:
		mode = runner.ModeCheck
	}

	c := openCache()
	if c != nil {
		defer c.Close()
	}

	r, err := runner.New(cfg, runner.Options{
		Mode:     mode,
		Color:    colorFlag,
		Quiet:    quiet,
		Verbose:  verbose,
		Upstream: newUpstream(),
		Cache:    c,
		Logger:   logger,
		Stdin:    cmd.InOrStdin(),
		Stdout:   cmd.OutOrStdout(),
		Stderr:   cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := r.Run(ctx, args)
	if err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintln(cmd.ErrOrStderr(), report.Summary())
	}
	if code := report.ExitCode(); code != runner.ExitOK {
		return &exitError{code: code}
	}
	return nil
}
