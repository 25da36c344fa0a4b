package upstream

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"straitjacket/internal/config"
)

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func TestNew(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.IsType(t, Passthrough{}, New(cfg, nil))

	cfg.Upstream.Command = []string{"black", "-q", "-"}
	cfg.Upstream.Timeout = "2s"
	f := New(cfg, nil)
	cmd, ok := f.(*Command)
	require.True(t, ok)
	assert.Equal(t, []string{"black", "-q", "-"}, cmd.Argv)
	assert.Equal(t, 2*time.Second, cmd.Timeout)
}

func TestPassthrough(t *testing.T) {
	out, err := Passthrough{}.Format(context.Background(), "x=1\n")
	require.NoError(t, err)
	assert.Equal(t, "x=1\n", out)
}

func TestCommand_Stdout(t *testing.T) {
	requireBinary(t, "sh")
	c := &Command{Argv: []string{"sh", "-c", "tr a-z A-Z"}, Logger: zaptest.NewLogger(t)}

	out, err := c.Format(context.Background(), "x = 1\n")
	require.NoError(t, err)
	assert.Equal(t, "X = 1\n", out)
}

func TestCommand_Failure(t *testing.T) {
	requireBinary(t, "sh")
	c := &Command{Argv: []string{"sh", "-c", "echo 'cannot parse' >&2; exit 123"}}

	_, err := c.Format(context.Background(), "x = (\n")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFormatter))
	assert.Contains(t, err.Error(), "cannot parse")
}

func TestCommand_Timeout(t *testing.T) {
	requireBinary(t, "sleep")
	c := &Command{Argv: []string{"sleep", "5"}, Timeout: 50 * time.Millisecond}

	start := time.Now()
	_, err := c.Format(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFormatter))
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestCommand_Canceled(t *testing.T) {
	requireBinary(t, "sleep")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Command{Argv: []string{"sleep", "5"}}).Format(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCommand_Missing(t *testing.T) {
	_, err := (&Command{Argv: []string{"definitely-not-a-formatter-xyz"}}).Format(context.Background(), "")
	assert.ErrorIs(t, err, ErrFormatter)

	_, err = (&Command{}).Format(context.Background(), "")
	assert.ErrorIs(t, err, ErrFormatter)
}
