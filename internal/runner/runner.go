// Package runner formats batches of files: discovery, the upstream
// formatter, the alignment engine, equivalence checks, caching and
// reporting.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"straitjacket/internal/align"
	"straitjacket/internal/cache"
	"straitjacket/internal/config"
	"straitjacket/internal/diff"
	"straitjacket/internal/equiv"
	"straitjacket/internal/logging"
	"straitjacket/internal/upstream"
	"straitjacket/internal/version"
)

// Options wires a Runner to its collaborators. Zero values are usable:
// no upstream formatter, no cache, a no-op logger and the process stdio.
type Options struct {
	Mode    Mode
	Color   bool // force ANSI colors in diffs
	Quiet   bool // only errors on stderr
	Verbose bool // also report unchanged files

	Upstream upstream.Formatter
	Cache    *cache.Cache
	Logger   *zap.Logger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Runner formats files according to a Config.
type Runner struct {
	cfg       *config.Config
	opts      Options
	engine    align.Options
	matcher   *Matcher
	formatter upstream.Formatter
	cache     *cache.Cache
	cacheMode string
	log       *zap.Logger
	colorizer *diff.Colorizer

	outMu sync.Mutex
}

// New builds a runner. The file patterns in cfg are compiled here.
func New(cfg *config.Config, opts Options) (*Runner, error) {
	matcher, err := NewMatcher(cfg.Files)
	if err != nil {
		return nil, err
	}
	if opts.Upstream == nil {
		opts.Upstream = upstream.Passthrough{}
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	engine := EngineOptions(cfg)
	r := &Runner{
		cfg:       cfg,
		opts:      opts,
		engine:    engine,
		matcher:   matcher,
		formatter: opts.Upstream,
		cache:     opts.Cache,
		cacheMode: cache.Mode(version.Version, engine, cfg.Upstream.Command),
		log:       logging.For(opts.Logger, logging.CategoryRunner),
	}
	if opts.Color {
		r.colorizer = diff.NewColorizer(opts.Stdout, true)
	}
	return r, nil
}

// EngineOptions extracts the alignment pass options from cfg.
func EngineOptions(cfg *config.Config) align.Options {
	return align.Options{
		SkipStringNormalization: cfg.Engine.SkipStringNormalization,
		SkipAlignment:           cfg.Engine.SkipAlignment,
	}
}

// Format runs src through f and the alignment engine. Unless fast is set the
// result must lex to the same tokens as the upstream output.
func Format(ctx context.Context, f upstream.Formatter, src string, opts align.Options, fast bool) (string, error) {
	formatted, err := f.Format(ctx, src)
	if err != nil {
		return "", err
	}
	out, err := align.Format(formatted, opts)
	if err != nil {
		return "", err
	}
	if !fast {
		if err := equiv.Check(formatted, out); err != nil {
			return "", err
		}
	}
	return out, nil
}

// FormatSource formats src with the runner's settings.
func (r *Runner) FormatSource(ctx context.Context, src string) (string, error) {
	return Format(ctx, r.formatter, src, r.engine, r.cfg.Engine.Fast)
}

// Run formats every file found under paths. Per-file failures are recorded
// in the report; the returned error is reserved for bad arguments and
// cancellation.
func (r *Runner) Run(ctx context.Context, paths []string) (*Report, error) {
	files, err := r.matcher.Discover(paths)
	if err != nil {
		return nil, err
	}

	report := &Report{Mode: r.opts.Mode}
	if len(files) == 0 {
		r.say("No Python files are present to be formatted. Nothing to do 😴")
		return report, nil
	}

	workers := r.cfg.Runner.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	r.log.Debug("run started",
		zap.Int("files", len(files)),
		zap.Int("workers", workers),
		zap.Stringer("mode", r.opts.Mode),
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.formatOne(gctx, path, report)
			return nil
		})
	}
	err = g.Wait()
	report.sort()

	r.log.Debug("run finished",
		zap.Int("changed", len(report.Changed)),
		zap.Int("unchanged", len(report.Unchanged)),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("elapsed", time.Since(start)),
	)
	if err == nil {
		err = ctx.Err()
	}
	return report, err
}

func (r *Runner) formatOne(ctx context.Context, path string, report *Report) {
	var (
		changed bool
		err     error
	)
	if path == StdinPath {
		changed, err = r.formatStdin(ctx)
	} else {
		changed, err = r.FormatFile(ctx, path)
	}

	switch {
	case err != nil:
		report.failed(path, err)
		r.complain("error: cannot format %s: %v", path, err)
	case changed:
		report.changed(path)
		if r.opts.Mode == ModeWrite {
			r.say("reformatted %s", path)
		} else {
			r.say("would reformat %s", path)
		}
	default:
		report.unchanged(path)
	}
}

// FormatFile formats a single file according to the runner's mode and
// reports whether it needed changes.
func (r *Runner) FormatFile(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	key, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}

	if r.cache != nil {
		fresh, err := r.cache.Fresh(key, r.cacheMode, info)
		if err != nil {
			r.log.Warn("cache lookup failed", zap.String("path", path), zap.Error(err))
		} else if fresh {
			r.verbose("%s wasn't modified on disk since last run.", path)
			return false, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	src := string(data)
	out, err := r.FormatSource(ctx, src)
	if err != nil {
		return false, err
	}

	defer func() {
		r.log.Debug("file formatted",
			zap.String("path", path),
			zap.Bool("changed", src != out),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()

	if out == src {
		r.verbose("%s already well formatted, good job.", path)
		r.remember(key, info)
		return false, nil
	}

	switch r.opts.Mode {
	case ModeWrite:
		if err := os.WriteFile(path, []byte(out), info.Mode().Perm()); err != nil {
			return false, err
		}
		if info, err := os.Stat(path); err == nil {
			r.remember(key, info)
		}
	case ModeDiff:
		if err := r.printDiff(path, path, src, out); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r *Runner) formatStdin(ctx context.Context) (bool, error) {
	data, err := io.ReadAll(r.opts.Stdin)
	if err != nil {
		return false, fmt.Errorf("failed to read stdin: %w", err)
	}
	src := string(data)
	out, err := r.FormatSource(ctx, src)
	if err != nil {
		return false, err
	}

	switch r.opts.Mode {
	case ModeWrite:
		r.outMu.Lock()
		_, err = io.WriteString(r.opts.Stdout, out)
		r.outMu.Unlock()
		if err != nil {
			return false, err
		}
	case ModeDiff:
		if out != src {
			if err := r.printDiff("STDIN", "STDOUT", src, out); err != nil {
				return false, err
			}
		}
	}
	return out != src, nil
}

func (r *Runner) remember(key string, info os.FileInfo) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Record(key, r.cacheMode, info); err != nil {
		r.log.Warn("cache update failed", zap.String("path", key), zap.Error(err))
	}
}

func (r *Runner) printDiff(oldPath, newPath, src, out string) error {
	text := diff.Unified(diff.ComputeDiff(oldPath, newPath, src, out))
	if r.colorizer != nil {
		text = r.colorizer.Colorize(text)
	}
	r.outMu.Lock()
	defer r.outMu.Unlock()
	if _, err := io.WriteString(r.opts.Stdout, text); err != nil {
		return fmt.Errorf("failed to write diff: %w", err)
	}
	return nil
}

// say prints a progress line unless quiet.
func (r *Runner) say(format string, args ...any) {
	if r.opts.Quiet {
		return
	}
	r.complain(format, args...)
}

func (r *Runner) verbose(format string, args ...any) {
	if r.opts.Verbose && !r.opts.Quiet {
		r.complain(format, args...)
	}
}

// complain prints to stderr regardless of quiet.
func (r *Runner) complain(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.opts.Stderr, format+"\n", args...)
}
