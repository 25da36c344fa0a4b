package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"straitjacket/internal/cache"
	"straitjacket/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	unaligned = "a = 1\nbbb = 2\n"
	aligned   = "a   = 1\nbbb = 2\n"
)

type harness struct {
	runner *Runner
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newHarness(t *testing.T, cfg *config.Config, opts Options) *harness {
	t.Helper()
	h := &harness{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	opts.Stdout = h.stdout
	opts.Stderr = h.stderr
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	r, err := New(cfg, opts)
	require.NoError(t, err)
	h.runner = r
	return h
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

type upstreamFunc func(src string) (string, error)

func (f upstreamFunc) Format(_ context.Context, src string) (string, error) { return f(src) }

func TestRunner_Write(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": unaligned, "b.py": aligned})
	h := newHarness(t, config.DefaultConfig(), Options{Mode: ModeWrite})

	report, err := h.runner.Run(context.Background(), []string{root})
	require.NoError(t, err)

	a, b := filepath.Join(root, "a.py"), filepath.Join(root, "b.py")
	assert.Equal(t, []string{a}, report.Changed)
	assert.Equal(t, []string{b}, report.Unchanged)
	assert.Empty(t, report.Failed)
	assert.Equal(t, ExitOK, report.ExitCode())

	assert.Equal(t, aligned, readFile(t, a))
	assert.Contains(t, h.stderr.String(), "reformatted "+a)
	assert.Empty(t, h.stdout.String())
}

func TestRunner_Check(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": unaligned})
	h := newHarness(t, config.DefaultConfig(), Options{Mode: ModeCheck})

	report, err := h.runner.Run(context.Background(), []string{root})
	require.NoError(t, err)

	path := filepath.Join(root, "a.py")
	assert.Equal(t, []string{path}, report.Changed)
	assert.Equal(t, ExitChanged, report.ExitCode())
	assert.Equal(t, unaligned, readFile(t, path), "check must not write")
	assert.Contains(t, h.stderr.String(), "would reformat "+path)
}

func TestRunner_Diff(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": unaligned})
	h := newHarness(t, config.DefaultConfig(), Options{Mode: ModeDiff})

	report, err := h.runner.Run(context.Background(), []string{root})
	require.NoError(t, err)
	assert.Equal(t, ExitChanged, report.ExitCode())

	path := filepath.Join(root, "a.py")
	out := h.stdout.String()
	assert.Contains(t, out, "--- "+path+"\n")
	assert.Contains(t, out, "+++ "+path+"\n")
	assert.Contains(t, out, "\n-a = 1\n")
	assert.Contains(t, out, "\n+a   = 1\n")
	assert.NotContains(t, out, "\x1b[")
	assert.Equal(t, unaligned, readFile(t, path))
}

func TestRunner_DiffColor(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": unaligned})
	h := newHarness(t, config.DefaultConfig(), Options{Mode: ModeDiff, Color: true})

	_, err := h.runner.Run(context.Background(), []string{root})
	require.NoError(t, err)
	assert.Contains(t, h.stdout.String(), "\x1b[")
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestRunner_DiffWriteError(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": unaligned})
	var stderr bytes.Buffer
	r, err := New(config.DefaultConfig(), Options{
		Mode:   ModeDiff,
		Logger: zaptest.NewLogger(t),
		Stdout: brokenWriter{},
		Stderr: &stderr,
	})
	require.NoError(t, err)

	report, err := r.Run(context.Background(), []string{root})
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.ErrorContains(t, report.Failed[0].Err, "broken pipe")
	assert.Equal(t, ExitError, report.ExitCode())
	assert.Contains(t, stderr.String(), "error: cannot format")
}

func TestRunner_Stdin(t *testing.T) {
	h := newHarness(t, config.DefaultConfig(), Options{
		Mode:  ModeWrite,
		Stdin: strings.NewReader(unaligned),
	})

	report, err := h.runner.Run(context.Background(), []string{StdinPath})
	require.NoError(t, err)
	assert.Equal(t, []string{StdinPath}, report.Changed)
	assert.Equal(t, aligned, h.stdout.String())
}

func TestRunner_StdinDiff(t *testing.T) {
	h := newHarness(t, config.DefaultConfig(), Options{
		Mode:  ModeDiff,
		Stdin: strings.NewReader(unaligned),
	})

	_, err := h.runner.Run(context.Background(), []string{StdinPath})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(h.stdout.String(), "--- STDIN\n+++ STDOUT\n"))
}

func TestRunner_Failure(t *testing.T) {
	root := writeTree(t, map[string]string{
		"bad.py":  "x = \"abc\n",
		"good.py": unaligned,
	})
	h := newHarness(t, config.DefaultConfig(), Options{Mode: ModeWrite})

	report, err := h.runner.Run(context.Background(), []string{root})
	require.NoError(t, err)

	require.Len(t, report.Failed, 1)
	assert.Equal(t, filepath.Join(root, "bad.py"), report.Failed[0].Path)
	assert.Len(t, report.Changed, 1)
	assert.Equal(t, ExitError, report.ExitCode())
	assert.Contains(t, h.stderr.String(), "error: cannot format "+filepath.Join(root, "bad.py"))
}

func TestRunner_Upstream(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": "a=1\nbbb=2\n"})
	spaced := upstreamFunc(func(src string) (string, error) {
		return strings.ReplaceAll(src, "=", " = "), nil
	})
	h := newHarness(t, config.DefaultConfig(), Options{Mode: ModeWrite, Upstream: spaced})

	_, err := h.runner.Run(context.Background(), []string{root})
	require.NoError(t, err)
	assert.Equal(t, aligned, readFile(t, filepath.Join(root, "a.py")))
}

func TestRunner_UpstreamError(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": unaligned})
	boom := errors.New("boom")
	failing := upstreamFunc(func(string) (string, error) { return "", boom })
	h := newHarness(t, config.DefaultConfig(), Options{Mode: ModeCheck, Upstream: failing})

	report, err := h.runner.Run(context.Background(), []string{root})
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0].Err, boom)
}

func TestRunner_Cache(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": unaligned, "b.py": aligned})
	c, err := cache.Open(filepath.Join(t.TempDir(), cache.FileName))
	require.NoError(t, err)
	defer c.Close()

	cfg := config.DefaultConfig()
	first := newHarness(t, cfg, Options{Mode: ModeWrite, Cache: c})
	report, err := first.runner.Run(context.Background(), []string{root})
	require.NoError(t, err)
	assert.Len(t, report.Changed, 1)

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	second := newHarness(t, cfg, Options{Mode: ModeCheck, Cache: c, Verbose: true})
	report, err = second.runner.Run(context.Background(), []string{root})
	require.NoError(t, err)
	assert.Empty(t, report.Changed)
	assert.Len(t, report.Unchanged, 2)
	assert.Contains(t, second.stderr.String(), "wasn't modified on disk since last run")

	// a touched file is formatted again
	path := filepath.Join(root, "a.py")
	require.NoError(t, os.WriteFile(path, []byte(unaligned), 0644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	third := newHarness(t, cfg, Options{Mode: ModeCheck, Cache: c})
	report, err = third.runner.Run(context.Background(), []string{root})
	require.NoError(t, err)
	assert.Equal(t, []string{path}, report.Changed)
}

func TestRunner_ManyFiles(t *testing.T) {
	files := make(map[string]string)
	for i := 0; i < 40; i++ {
		files[fmt.Sprintf("pkg%d/m%02d.py", i%4, i)] = unaligned
	}
	root := writeTree(t, files)
	cfg := config.DefaultConfig()
	cfg.Runner.Workers = 4
	h := newHarness(t, cfg, Options{Mode: ModeWrite, Quiet: true})

	report, err := h.runner.Run(context.Background(), []string{root})
	require.NoError(t, err)
	assert.Len(t, report.Changed, 40)
	assert.Empty(t, h.stderr.String())
	assert.True(t, sortedStrings(report.Changed))
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

func TestRunner_NothingToDo(t *testing.T) {
	root := writeTree(t, map[string]string{"notes.txt": "hi\n"})
	h := newHarness(t, config.DefaultConfig(), Options{})

	report, err := h.runner.Run(context.Background(), []string{root})
	require.NoError(t, err)
	assert.Equal(t, ExitOK, report.ExitCode())
	assert.Contains(t, h.stderr.String(), "Nothing to do")
}

func TestRunner_Canceled(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": unaligned})
	h := newHarness(t, config.DefaultConfig(), Options{Mode: ModeWrite})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.runner.Run(ctx, []string{root})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, unaligned, readFile(t, filepath.Join(root, "a.py")))
}

func TestRunner_Fast(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Engine.Fast = true
	cfg.Engine.SkipAlignment = true
	h := newHarness(t, cfg, Options{})

	out, err := h.runner.FormatSource(context.Background(), "x = 'some text'\n")
	require.NoError(t, err)
	assert.Equal(t, "x = \"some text\"\n", out)
}

func TestNew_BadPattern(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Files.Include = "("
	_, err := New(cfg, Options{})
	assert.Error(t, err)
}
