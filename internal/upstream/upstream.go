// Package upstream runs the line formatter whose output the alignment engine
// post-processes.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"straitjacket/internal/config"
)

// ErrFormatter is wrapped when the external formatter fails or times out.
var ErrFormatter = errors.New("upstream formatter failed")

// Formatter turns arbitrary source into line-formatted source.
type Formatter interface {
	Format(ctx context.Context, src string) (string, error)
}

// Passthrough assumes its input is formatted already.
type Passthrough struct{}

// Format returns src unchanged.
func (Passthrough) Format(_ context.Context, src string) (string, error) {
	return src, nil
}

// Command pipes the source through an external program such as
// "black -q -" and reads the formatted source from its stdout.
type Command struct {
	Argv    []string
	Timeout time.Duration
	Logger  *zap.Logger
}

// New returns the formatter described by cfg.
func New(cfg *config.Config, logger *zap.Logger) Formatter {
	if len(cfg.Upstream.Command) == 0 {
		return Passthrough{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Command{
		Argv:    cfg.Upstream.Command,
		Timeout: cfg.GetUpstreamTimeout(),
		Logger:  logger,
	}
}

// Format runs the command with src on stdin.
func (c *Command) Format(ctx context.Context, src string) (string, error) {
	if len(c.Argv) == 0 {
		return "", fmt.Errorf("%w: empty command", ErrFormatter)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Stdin = strings.NewReader(src)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if c.Logger != nil {
		c.Logger.Debug("upstream formatter finished",
			zap.Strings("argv", c.Argv),
			zap.Int("bytes_in", len(src)),
			zap.Int("bytes_out", stdout.Len()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w: %s: timeout after %s", ErrFormatter, c.Argv[0], c.Timeout)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%w: %s: %s", ErrFormatter, c.Argv[0], msg)
	}

	return stdout.String(), nil
}
