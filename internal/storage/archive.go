package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	ioutils "github.com/handiism/music-parser/internal/io"
	"github.com/handiism/music-parser/internal/logging"
)

// ArchiveFile is an in-memory file added to an archive next to cached
// artifacts, for example a playlist.
type ArchiveFile struct {
	Name string
	Data []byte
}

// Zip packs the named cached files, plus extras, into a new archive under
// the cache's archives directory and returns its path. Every call produces
// a distinct archive name. Archives are removed by EvictExpired once they
// are older than an hour.
func (c *Cache) Zip(label string, filenames []string, extras ...ArchiveFile) (string, error) {
	if len(filenames) == 0 && len(extras) == 0 {
		return "", errors.New("zip: nothing to archive")
	}

	if err := ioutils.EnsureDir(c.archiveDir()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	base := ioutils.SanitizeFileName(label)
	if base == "" {
		base = "bundle"
	}
	path := filepath.Join(c.archiveDir(), base+"-"+uuid.NewString()+".zip")

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: create archive: %v", ErrStorageUnavailable, err)
	}

	if err := c.writeArchive(file, filenames, extras); err != nil {
		file.Close()
		os.Remove(path)
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close archive: %w", err)
	}

	c.logger.Debug("archive created",
		logging.String("path", path),
		logging.Int("files", len(filenames)+len(extras)))
	return path, nil
}

// ArchivePath returns the location of the archive named name. The name
// is reduced to its base so callers cannot escape the archives directory.
func (c *Cache) ArchivePath(name string) string {
	return filepath.Join(c.archiveDir(), filepath.Base(name))
}

func (c *Cache) writeArchive(w io.Writer, filenames []string, extras []ArchiveFile) error {
	zw := zip.NewWriter(w)
	used := make(map[string]int)

	for _, name := range filenames {
		if err := c.addFile(zw, uniqueName(used, filepath.Base(name)), c.Path(name)); err != nil {
			zw.Close()
			return err
		}
	}

	for _, extra := range extras {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:   uniqueName(used, extra.Name),
			Method: zip.Deflate,
		})
		if err != nil {
			zw.Close()
			return err
		}
		if _, err := fw.Write(extra.Data); err != nil {
			zw.Close()
			return err
		}
	}

	return zw.Close()
}

func (c *Cache) addFile(zw *zip.Writer, entryName, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("zip: open %s: %w", filepath.Base(path), err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = entryName
	// audio is already compressed
	header.Method = zip.Store

	fw, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, src)
	return err
}

func uniqueName(used map[string]int, name string) string {
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + " (" + strconv.Itoa(n+1) + ")" + ext
}
