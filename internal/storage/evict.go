package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/handiism/music-parser/internal/logging"
)

// EvictionReport summarizes one sweep.
type EvictionReport struct {
	EntriesRemoved  int
	FilesRemoved    int
	PartialsKept    int
	ArchivesRemoved int
}

// EvictExpired drops entries older than the retention window or whose
// file is gone, restores the reserved entries, and deletes files in the
// cache directory that no entry references. Files the downloader is still
// writing are left alone. Running it twice in a row changes nothing the
// second time.
func (c *Cache) EvictExpired() (EvictionReport, error) {
	var report EvictionReport

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if isReserved(key) {
			continue
		}
		if now.Sub(entry.Timestamp) > c.retention || !c.fileExists(entry.Filename) {
			delete(c.entries, key)
			report.EntriesRemoved++
		}
	}
	c.seedReservedLocked()

	referenced := make(map[string]struct{}, len(c.entries))
	for _, entry := range c.entries {
		referenced[entry.Filename] = struct{}{}
	}

	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return report, fmt.Errorf("%w: scan cache directory: %v", ErrStorageUnavailable, err)
	}

	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		name := de.Name()
		if _, ok := referenced[name]; ok {
			continue
		}
		if c.isPartial(name) {
			report.PartialsKept++
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(c.logger, "remove orphan failed", "cache_orphan_remove_failed",
				logging.String("filename", name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "orphan stays on disk until the next sweep"))
			continue
		}
		report.FilesRemoved++
	}

	report.ArchivesRemoved = c.pruneArchivesLocked()

	if report.EntriesRemoved > 0 || report.FilesRemoved > 0 || report.ArchivesRemoved > 0 {
		c.logger.Info("cache sweep",
			logging.Int("entries_removed", report.EntriesRemoved),
			logging.Int("files_removed", report.FilesRemoved),
			logging.Int("partials_kept", report.PartialsKept),
			logging.Int("archives_removed", report.ArchivesRemoved))
	}
	return report, nil
}

// EvictDelivered removes every delivered entry along with its file.
func (c *Cache) EvictDelivered() (EvictionReport, error) {
	var report EvictionReport

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if isReserved(key) || !entry.Delivered {
			continue
		}
		err := os.Remove(c.Path(entry.Filename))
		switch {
		case err == nil:
			report.FilesRemoved++
		case errors.Is(err, fs.ErrNotExist):
		default:
			return report, fmt.Errorf("%w: remove %s: %v", ErrStorageUnavailable, entry.Filename, err)
		}
		delete(c.entries, key)
		report.EntriesRemoved++
	}

	if report.EntriesRemoved > 0 {
		c.logger.Debug("evicted delivered artifacts", logging.Int("entries_removed", report.EntriesRemoved))
	}
	return report, nil
}

func (c *Cache) pruneArchivesLocked() int {
	dirEntries, err := os.ReadDir(c.archiveDir())
	if err != nil {
		return 0
	}

	removed := 0
	now := c.now()
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if now.Sub(info.ModTime()) <= c.archiveTTL {
			continue
		}
		if err := os.Remove(filepath.Join(c.archiveDir(), de.Name())); err == nil {
			removed++
		}
	}
	return removed
}

// isPartial reports whether name looks like a file the downloader has not
// finished: its final extension is an intermediate one ("song.webm",
// "song.part-Frag3"), or an intermediate extension sits right before the
// final one ("song.temp.mp3"). Dots elsewhere in a title never count.
func (c *Cache) isPartial(name string) bool {
	lower := strings.ToLower(name)
	ext := filepath.Ext(lower)
	inner := filepath.Ext(strings.TrimSuffix(lower, ext))
	for _, p := range c.partialExts {
		if ext == p || strings.HasPrefix(ext, p+"-") || inner == p {
			return true
		}
	}
	return false
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}
