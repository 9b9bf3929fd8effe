// Package cache persists generic-alternative resolutions in a single JSON
// file keyed by normalized medicine name.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/giygas/prescription-analyzer/entities"
	"github.com/giygas/prescription-analyzer/interfaces"
	"github.com/giygas/prescription-analyzer/logging"
	"github.com/giygas/prescription-analyzer/metrics"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ErrEmptyKey is returned by Set for names that normalize to nothing
var ErrEmptyKey = errors.New("empty cache key")

// Timestamps written by older versions carry no zone
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// Cache is an in-memory map mirrored to disk. Every Set rewrites the
// whole file through a temp file and rename.
type Cache struct {
	mu      sync.RWMutex
	path    string
	entries map[string]entities.CacheEntry
	dirty   bool
	now     func() time.Time
}

var _ interfaces.GenericsCache = (*Cache)(nil)

type diskEntry struct {
	Data      json.RawMessage `json:"data"`
	Source    string          `json:"source"`
	Timestamp string          `json:"timestamp"`
}

// Normalize maps a medicine name to its cache key: NFKC, case folded,
// surrounding whitespace removed.
func Normalize(name string) string {
	return strings.TrimSpace(cases.Fold().String(norm.NFKC.String(name)))
}

// Load reads path into memory. A missing or unreadable file yields an
// empty cache; the file is created on the first Set.
func Load(path string) *Cache {
	c := &Cache{
		path:    path,
		entries: make(map[string]entities.CacheEntry),
		now:     time.Now,
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("No generics cache file yet, starting empty", "path", path)
	case err != nil:
		logging.Error("Failed to read generics cache, starting empty", "path", path, "error", err)
	default:
		if err := c.decode(raw); err != nil {
			logging.Error("Generics cache file is corrupt, starting empty", "path", path, "error", err)
			c.entries = make(map[string]entities.CacheEntry)
		}
	}

	metrics.GenericsCacheEntries.Set(float64(len(c.entries)))
	logging.Info("Generics cache loaded", "path", path, "entries", len(c.entries))
	return c
}

func (c *Cache) decode(raw []byte) error {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}

	var disk map[string]diskEntry
	if err := json.Unmarshal(raw, &disk); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}

	for name, e := range disk {
		key := Normalize(name)
		if key == "" {
			continue
		}
		c.entries[key] = entities.CacheEntry{
			Data:      e.Data,
			Source:    entities.Source(e.Source),
			Timestamp: parseTimestamp(e.Timestamp),
		}
	}
	return nil
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Get returns the entry for name, if any
func (c *Cache) Get(name string) (entities.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[Normalize(name)]
	return e, ok
}

// Set stores data under name, replacing any previous entry, and rewrites
// the file. The in-memory entry is kept even when the write fails; the
// cache is then marked dirty for a later Flush.
func (c *Cache) Set(name string, data json.RawMessage, source entities.Source) error {
	key := Normalize(name)
	if key == "" {
		return ErrEmptyKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entities.CacheEntry{
		Data:      append(json.RawMessage(nil), data...),
		Source:    source,
		Timestamp: c.now().UTC(),
	}
	metrics.GenericsCacheEntries.Set(float64(len(c.entries)))

	if err := c.writeLocked(); err != nil {
		c.dirty = true
		return err
	}
	c.dirty = false
	return nil
}

// Flush rewrites the file if an earlier write failed
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}
	if err := c.writeLocked(); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// Len returns the number of entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Dirty reports whether memory holds entries the file does not
func (c *Cache) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

// Path returns the backing file
func (c *Cache) Path() string {
	return c.path
}

// writeLocked replaces the file atomically (caller must hold mu)
func (c *Cache) writeLocked() error {
	disk := make(map[string]diskEntry, len(c.entries))
	for key, e := range c.entries {
		disk[key] = diskEntry{
			Data:      e.Data,
			Source:    string(e.Source),
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		}
	}

	raw, err := json.MarshalIndent(disk, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".generics-cache-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}
