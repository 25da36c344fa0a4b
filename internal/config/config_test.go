package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SJFMT_WORKERS", "SJFMT_LOG_LEVEL", "SJFMT_LOG_FORMAT",
		"SJFMT_UPSTREAM", "SJFMT_CACHE_DIR", "SJFMT_SERVER_ADDR",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Addr != "localhost:45484" {
		t.Errorf("expected Addr=localhost:45484, got %s", cfg.Server.Addr)
	}
	if len(cfg.Upstream.Command) != 0 {
		t.Errorf("expected no upstream command, got %v", cfg.Upstream.Command)
	}
	if !cfg.Cache.Enabled {
		t.Error("expected cache to be enabled")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  skip_alignment: true
upstream:
  command: [black, -q, -]
runner:
  workers: 3
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Engine.SkipAlignment)
	assert.Equal(t, []string{"black", "-q", "-"}, cfg.Upstream.Command)
	assert.Equal(t, 3, cfg.Runner.Workers)
	// untouched sections keep their defaults
	assert.Equal(t, "200ms", cfg.Watch.Debounce)
	assert.Equal(t, `\.pyi?$`, cfg.Files.Include)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("engine: [\n"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", FileName)

	cfg := DefaultConfig()
	cfg.Engine.Fast = true
	cfg.Files.Shebang = true
	cfg.Logging.Categories = map[string]bool{"server": false}

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("values", func(t *testing.T) {
		t.Setenv("SJFMT_WORKERS", "7")
		t.Setenv("SJFMT_LOG_LEVEL", "debug")
		t.Setenv("SJFMT_LOG_FORMAT", "json")
		t.Setenv("SJFMT_UPSTREAM", "black -q -")
		t.Setenv("SJFMT_CACHE_DIR", "/tmp/sjfmt")
		t.Setenv("SJFMT_SERVER_ADDR", ":9000")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, 7, cfg.Runner.Workers)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.Equal(t, []string{"black", "-q", "-"}, cfg.Upstream.Command)
		assert.Equal(t, "/tmp/sjfmt", cfg.Cache.Dir)
		assert.Equal(t, ":9000", cfg.Server.Addr)
	})

	t.Run("none disables upstream", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SJFMT_UPSTREAM", "none")
		cfg := &Config{Upstream: UpstreamConfig{Command: []string{"black"}}}
		cfg.applyEnvOverrides()
		assert.Nil(t, cfg.Upstream.Command)
	})

	t.Run("bad worker count is ignored", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SJFMT_WORKERS", "many")
		cfg := &Config{Runner: RunnerConfig{Workers: 2}}
		cfg.applyEnvOverrides()
		assert.Equal(t, 2, cfg.Runner.Workers)
	})
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(deep, 0755))

	got, err := Find(deep)
	require.NoError(t, err)
	// a stray config above the temp dir would be found here; only check it
	// is not inside root
	if got != "" {
		assert.NotContains(t, got, root)
	}

	want := filepath.Join(root, "a", FileName)
	require.NoError(t, os.WriteFile(want, []byte("{}\n"), 0644))

	got, err = Find(deep)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	file := filepath.Join(deep, "mod.py")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	got, err = Find(file)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"level", func(c *Config) { c.Logging.Level = "loud" }},
		{"format", func(c *Config) { c.Logging.Format = "xml" }},
		{"workers", func(c *Config) { c.Runner.Workers = -1 }},
		{"include", func(c *Config) { c.Files.Include = "(" }},
		{"extend exclude", func(c *Config) { c.Files.ExtendExclude = "[" }},
		{"debounce", func(c *Config) { c.Watch.Debounce = "soon" }},
		{"body", func(c *Config) { c.Server.MaxBodyBytes = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.GetUpstreamTimeout())
	assert.Equal(t, 200*time.Millisecond, cfg.GetWatchDebounce())
	assert.Equal(t, 10*time.Second, cfg.GetReadTimeout())
	assert.Equal(t, 5*time.Second, cfg.GetShutdownTimeout())

	cfg.Upstream.Timeout = "garbage"
	cfg.Watch.Debounce = "-1s"
	assert.Equal(t, 30*time.Second, cfg.GetUpstreamTimeout())
	assert.Equal(t, 200*time.Millisecond, cfg.GetWatchDebounce())

	cfg.Watch.Debounce = "1s"
	assert.Equal(t, time.Second, cfg.GetWatchDebounce())
}

func TestIsCategoryEnabled(t *testing.T) {
	lc := LoggingConfig{}
	assert.True(t, lc.IsCategoryEnabled("server"))

	lc.Categories = map[string]bool{"server": false, "runner": true}
	assert.False(t, lc.IsCategoryEnabled("server"))
	assert.True(t, lc.IsCategoryEnabled("runner"))
	assert.True(t, lc.IsCategoryEnabled("watch"))
}
