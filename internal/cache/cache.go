// Package cache remembers which files are already formatted, keyed by
// path and formatting mode, so unchanged files can be skipped.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"straitjacket/internal/align"
)

// FileName is the database file inside the cache directory.
const FileName = "cache.db"

// Cache is a SQLite-backed record of formatted files.
type Cache struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// DefaultPath returns the database path inside dir, or inside the user
// cache directory when dir is empty.
func DefaultPath(dir string) (string, error) {
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("failed to locate user cache dir: %w", err)
		}
		dir = filepath.Join(base, "sjfmt")
	}
	return filepath.Join(dir, FileName), nil
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*Cache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; worker goroutines queue on the pool.
	db.SetMaxOpenConns(1)

	c := &Cache{db: db, dbPath: path}
	if err := c.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS formatted (
		path TEXT NOT NULL,
		mode TEXT NOT NULL,
		size INTEGER NOT NULL,
		mtime_ns INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (path, mode)
	);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create cache table: %w", err)
	}
	return nil
}

// Path returns the database file location.
func (c *Cache) Path() string { return c.dbPath }

// Fresh reports whether path was recorded in mode with the size and
// modification time of info.
func (c *Cache) Fresh(path, mode string, info os.FileInfo) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var size, mtime int64
	err := c.db.QueryRow(
		`SELECT size, mtime_ns FROM formatted WHERE path = ? AND mode = ?`,
		path, mode,
	).Scan(&size, &mtime)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query cache: %w", err)
	}
	return size == info.Size() && mtime == info.ModTime().UnixNano(), nil
}

// Record stores the current size and modification time of path.
func (c *Cache) Record(path, mode string, info os.FileInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(`
		INSERT INTO formatted (path, mode, size, mtime_ns, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path, mode) DO UPDATE SET
			size = excluded.size,
			mtime_ns = excluded.mtime_ns,
			updated_at = excluded.updated_at`,
		path, mode, info.Size(), info.ModTime().UnixNano(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", path, err)
	}
	return nil
}

// Forget drops every record of path.
func (c *Cache) Forget(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec(`DELETE FROM formatted WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to forget %s: %w", path, err)
	}
	return nil
}

// Len returns the number of records.
func (c *Cache) Len() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM formatted`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

// Clear removes every record.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec(`DELETE FROM formatted`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Mode fingerprints everything that influences the formatted output, so
// records made with other settings are never trusted.
func Mode(version string, opts align.Options, upstream []string) string {
	parts := []string{
		version,
		strconv.FormatBool(opts.SkipStringNormalization),
		strconv.FormatBool(opts.SkipAlignment),
		strings.Join(upstream, "\x00"),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:8])
}
