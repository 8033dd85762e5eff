package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	ioutils "github.com/handiism/music-parser/internal/io"
	"github.com/handiism/music-parser/internal/logging"
)

const (
	// KeySelf maps to the index file itself.
	KeySelf = "SELF"
	// KeyLog maps to the diagnostics log file.
	KeyLog = "LOG"

	// IndexFileName is the persisted index inside the cache directory.
	IndexFileName = "index.json"

	archiveDirName = "archives"
)

// DefaultRetention is how long a completed artifact stays cached.
const DefaultRetention = 3 * 24 * time.Hour

// DefaultPartialExtensions marks files the downloader is still writing.
var DefaultPartialExtensions = []string{".part", ".ytdl", ".temp", ".tmp", ".webm", ".m4a"}

// Entry is one cached artifact.
type Entry struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	Delivered bool      `json:"delivered"`
}

// Listing is an Entry annotated for display.
type Listing struct {
	Key    string
	Entry  Entry
	Size   int64
	Exists bool
}

// Cache maps external identifiers to artifact files in a single directory.
//
// The index lives in memory, guarded by one RWMutex, and is written to
// index.json by Persist. Filesystem state is authoritative: Find checks the
// file, and EvictExpired reconciles the index against the directory.
type Cache struct {
	dir         string
	retention   time.Duration
	archiveTTL  time.Duration
	partialExts []string
	artifactExt string
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.RWMutex
	entries map[string]Entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithRetention sets how long entries survive EvictExpired.
func WithRetention(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.retention = d
		}
	}
}

// WithPartialExtensions replaces the list of in-progress file extensions.
func WithPartialExtensions(exts []string) Option {
	return func(c *Cache) {
		if len(exts) > 0 {
			c.partialExts = normalizeExts(exts)
		}
	}
}

// WithArtifactExtension names the extension finished artifacts carry.
// It is never treated as partial, even when listed as one.
func WithArtifactExtension(ext string) Option {
	return func(c *Cache) {
		if exts := normalizeExts([]string{ext}); len(exts) == 1 {
			c.artifactExt = exts[0]
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logging.NewComponentLogger(logger, "storage")
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Open prepares dir for use and loads its index. A missing index starts a
// fresh one; an unreadable index is logged and replaced.
func Open(dir string, opts ...Option) (*Cache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: empty directory", ErrStorageUnavailable)
	}

	c := &Cache{
		dir:         dir,
		retention:   DefaultRetention,
		archiveTTL:  time.Hour,
		partialExts: normalizeExts(DefaultPartialExtensions),
		logger:      logging.NewComponentLogger(nil, "storage"),
		now:         time.Now,
		entries:     make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.artifactExt != "" {
		c.partialExts = slices.DeleteFunc(c.partialExts, func(e string) bool { return e == c.artifactExt })
	}

	if err := ioutils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if err := c.load(); err != nil {
		if !errors.Is(err, errCorruptIndex) {
			return nil, err
		}
		logging.WarnWithContext(c.logger, "cache index unreadable, starting fresh", "cache_index_corrupt",
			logging.Error(err),
			logging.String(logging.FieldImpact, "previously cached artifacts will be removed on the next sweep"),
			logging.String("path", c.indexPath()))
		c.entries = make(map[string]Entry)
	}
	c.seedReserved()

	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Path returns the absolute location of filename inside the cache.
func (c *Cache) Path(filename string) string {
	return filepath.Join(c.dir, filepath.Base(filename))
}

// Find reports whether key has an entry whose file exists.
func (c *Cache) Find(key string) bool {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	return c.fileExists(entry.Filename)
}

// Present reports whether a finished (non-partial) file named filename
// exists in the cache directory, indexed or not.
func (c *Cache) Present(filename string) bool {
	if filename == "" || filename != filepath.Base(filename) {
		return false
	}
	if c.isPartial(filename) {
		return false
	}
	return c.fileExists(filename)
}

// Lookup returns the entry for key.
func (c *Cache) Lookup(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok
}

// RecordCompletion inserts or overwrites the entry for key with the
// current time and Delivered=false.
func (c *Cache) RecordCompletion(key, filename string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("record completion: empty key")
	}
	if isReserved(key) {
		return fmt.Errorf("record completion: %w: %s", ErrReservedKey, key)
	}
	if filename == "" || filename != filepath.Base(filename) {
		return fmt.Errorf("record completion: invalid filename %q", filename)
	}

	c.mu.Lock()
	c.entries[key] = Entry{Filename: filename, Timestamp: c.now().UTC()}
	c.mu.Unlock()

	c.logger.Debug("recorded completion",
		logging.String(logging.FieldExternalID, key),
		logging.String("filename", filename))
	return nil
}

// MarkDelivered flags key as delivered. Marking twice is a no-op; an
// absent key returns ErrNotIndexed.
func (c *Cache) MarkDelivered(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return fmt.Errorf("mark delivered %q: %w", key, ErrNotIndexed)
	}
	if !entry.Delivered {
		entry.Delivered = true
		c.entries[key] = entry
	}
	return nil
}

// Entries lists every entry sorted by key, reserved entries first.
func (c *Cache) Entries() []Listing {
	c.mu.RLock()
	out := make([]Listing, 0, len(c.entries))
	for key, entry := range c.entries {
		out = append(out, Listing{Key: key, Entry: entry})
	}
	c.mu.RUnlock()

	for i := range out {
		if info, err := os.Stat(c.Path(out[i].Entry.Filename)); err == nil {
			out[i].Exists = true
			out[i].Size = info.Size()
		}
	}

	sort.Slice(out, func(i, j int) bool {
		ri, rj := isReserved(out[i].Key), isReserved(out[j].Key)
		if ri != rj {
			return ri
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Len returns the number of entries, reserved ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Persist writes the full index to disk atomically.
func (c *Cache) Persist() error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	if err := ioutils.WriteFileAtomic(c.indexPath(), data); err != nil {
		return fmt.Errorf("%w: persist index: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Reset deletes every artifact and archive, starts a fresh index and
// persists it. The diagnostics log is kept.
func (c *Cache) Reset() error {
	c.mu.Lock()
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() {
			if name == archiveDirName {
				if err := os.RemoveAll(filepath.Join(c.dir, name)); err != nil {
					c.logger.Warn("remove archives failed", logging.Error(err))
				}
			}
			continue
		}
		if name == IndexFileName || name == logging.DiagnosticsFileName {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("remove file failed", logging.String("filename", name), logging.Error(err))
		}
	}

	c.entries = make(map[string]Entry)
	c.mu.Unlock()

	c.seedReserved()
	c.logger.Info("cache reset", logging.String("dir", c.dir))
	return c.Persist()
}

var errCorruptIndex = errors.New("corrupt index")

func (c *Cache) load() error {
	data, err := os.ReadFile(c.indexPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: read index: %v", ErrStorageUnavailable, err)
	}
	if len(data) == 0 {
		return nil
	}

	entries := make(map[string]Entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("%w: %v", errCorruptIndex, err)
	}
	c.entries = entries

	c.logger.Debug("loaded cache index",
		logging.Int("entry_count", len(entries)),
		logging.String("path", c.indexPath()))
	return nil
}

// seedReserved adds the reserved entries when they are missing.
func (c *Cache) seedReserved() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seedReservedLocked()
}

func (c *Cache) seedReservedLocked() {
	now := c.now().UTC()
	if _, ok := c.entries[KeySelf]; !ok {
		c.entries[KeySelf] = Entry{Filename: IndexFileName, Timestamp: now}
	}
	if _, ok := c.entries[KeyLog]; !ok {
		c.entries[KeyLog] = Entry{Filename: logging.DiagnosticsFileName, Timestamp: now}
	}
}

func (c *Cache) indexPath() string {
	return filepath.Join(c.dir, IndexFileName)
}

func (c *Cache) archiveDir() string {
	return filepath.Join(c.dir, archiveDirName)
}

func (c *Cache) fileExists(filename string) bool {
	if filename == "" {
		return false
	}
	info, err := os.Stat(c.Path(filename))
	return err == nil && info.Mode().IsRegular()
}

// ReservedFile reports whether filename is the index or the diagnostics
// log rather than an artifact.
func ReservedFile(filename string) bool {
	return filename == IndexFileName || filename == logging.DiagnosticsFileName
}

func isReserved(key string) bool {
	return key == KeySelf || key == KeyLog
}
