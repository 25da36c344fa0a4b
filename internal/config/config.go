package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the project config file looked up by Find.
const FileName = ".sjfmt.yaml"

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all sjfmt configuration.
type Config struct {
	// Formatting passes
	Engine EngineConfig `yaml:"engine"`

	// File discovery
	Files FilesConfig `yaml:"files"`

	// Line formatter run before alignment
	Upstream UpstreamConfig `yaml:"upstream"`

	Runner RunnerConfig `yaml:"runner"`
	Cache  CacheConfig  `yaml:"cache"`
	Server ServerConfig `yaml:"server"`
	Watch  WatchConfig  `yaml:"watch"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig selects which formatting passes run.
type EngineConfig struct {
	SkipStringNormalization bool `yaml:"skip_string_normalization"`
	SkipAlignment           bool `yaml:"skip_alignment"`

	// Fast skips the token equivalence check after formatting.
	Fast bool `yaml:"fast"`
}

// FilesConfig controls which files a directory walk picks up.
type FilesConfig struct {
	Include       string `yaml:"include"`        // regex on slash-separated paths
	Exclude       string `yaml:"exclude"`        // regex, matched against directories and files
	ExtendExclude string `yaml:"extend_exclude"` // added to Exclude
	Shebang       bool   `yaml:"shebang"`        // also pick up extensionless python scripts
	SkipVendored  bool   `yaml:"skip_vendored"`  // skip vendor/, node_modules/ and friends
}

// UpstreamConfig configures the line formatter. An empty command means the
// input is assumed to be formatted already.
type UpstreamConfig struct {
	Command []string `yaml:"command,omitempty"` // e.g. [black, -q, -]
	Timeout string   `yaml:"timeout"`
}

// RunnerConfig configures batch formatting.
type RunnerConfig struct {
	Workers int `yaml:"workers"` // 0 means one per CPU
}

// CacheConfig configures the formatted-file cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"` // empty means the user cache dir
}

// ServerConfig configures the HTTP daemon.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// DefaultExclude mirrors black's default exclusion list.
const DefaultExclude = `/(\.direnv|\.eggs|\.git|\.hg|\.mypy_cache|\.nox|\.tox|\.venv|venv|\.svn|_build|buck-out|build|dist)/`

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Files: FilesConfig{
			Include:      `\.pyi?$`,
			Exclude:      DefaultExclude,
			SkipVendored: true,
		},

		Upstream: UpstreamConfig{
			Timeout: "30s",
		},

		Cache: CacheConfig{
			Enabled: true,
		},

		Server: ServerConfig{
			Addr:            "localhost:45484",
			ReadTimeout:     "10s",
			ShutdownTimeout: "5s",
			MaxBodyBytes:    4 << 20,
		},

		Watch: WatchConfig{
			Debounce: "200ms",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Find walks from start towards the filesystem root and returns the first
// FileName it sees, or "" when there is none.
func Find(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SJFMT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Runner.Workers = n
		}
	}

	if v := os.Getenv("SJFMT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SJFMT_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	// "none" switches the upstream formatter off
	if v := os.Getenv("SJFMT_UPSTREAM"); v != "" {
		if v == "none" {
			c.Upstream.Command = nil
		} else {
			c.Upstream.Command = strings.Fields(v)
		}
	}

	if v := os.Getenv("SJFMT_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("SJFMT_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// GetUpstreamTimeout returns the upstream formatter timeout as a duration.
func (c *Config) GetUpstreamTimeout() time.Duration {
	return parseDuration(c.Upstream.Timeout, 30*time.Second)
}

// GetWatchDebounce returns the watch debounce interval as a duration.
func (c *Config) GetWatchDebounce() time.Duration {
	return parseDuration(c.Watch.Debounce, 200*time.Millisecond)
}

// GetReadTimeout returns the server read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 10*time.Second)
}

// GetShutdownTimeout returns the server shutdown grace period.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 5*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// ValidLogFormats lists the accepted logging encoders.
var ValidLogFormats = []string{"console", "json"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !contains(ValidLogLevels, c.Logging.Level) {
		return fmt.Errorf("%w: log level %q (valid: %v)", ErrInvalid, c.Logging.Level, ValidLogLevels)
	}
	if !contains(ValidLogFormats, c.Logging.Format) {
		return fmt.Errorf("%w: log format %q (valid: %v)", ErrInvalid, c.Logging.Format, ValidLogFormats)
	}
	if c.Runner.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalid, c.Runner.Workers)
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: max_body_bytes must not be negative", ErrInvalid)
	}

	for name, expr := range map[string]string{
		"include":        c.Files.Include,
		"exclude":        c.Files.Exclude,
		"extend_exclude": c.Files.ExtendExclude,
	} {
		if expr == "" {
			continue
		}
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("%w: files.%s: %v", ErrInvalid, name, err)
		}
	}

	for name, d := range map[string]string{
		"upstream.timeout":        c.Upstream.Timeout,
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"watch.debounce":          c.Watch.Debounce,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
		}
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
