package ioutils

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	invalidNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	trailingDots     = regexp.MustCompile(`\.+$`)
	repeatedSpace    = regexp.MustCompile(`\s+`)
)

// maxNameLength keeps generated names well below common 255 byte limits
// once an extension and an archive suffix are appended.
const maxNameLength = 180

// CopyFile copies src to dst, creating or truncating dst.
func CopyFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	if err := EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		destFile.Close()
		return err
	}
	return destFile.Close()
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place, so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// SanitizeFileName replaces characters that are invalid in file names,
// collapses whitespace and bounds the length.
//
//	SanitizeFileName("AC/DC: Back in Black") // "AC_DC_ Back in Black"
func SanitizeFileName(name string) string {
	name = invalidNameChars.ReplaceAllString(name, "_")
	name = repeatedSpace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	name = trailingDots.ReplaceAllString(name, "")

	if len(name) > maxNameLength {
		name = strings.TrimSpace(truncateUTF8(name, maxNameLength))
	}
	return name
}

// EnsureDir creates path and its parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8Start(s[n]) {
		n--
	}
	return s[:n]
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
