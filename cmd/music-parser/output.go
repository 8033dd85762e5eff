package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/handiism/music-parser/internal/download"
	ioutils "github.com/handiism/music-parser/internal/io"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiDim    = "\x1b[2m"
)

// consoleSink prints progress events one per line. A terminal cannot edit
// earlier lines cheaply, so every edit is printed as a new line; identical
// edits never reach the sink. Attachments are copied into outputDir when
// it is set.
type consoleSink struct {
	mu        sync.Mutex
	out       io.Writer
	colorize  bool
	verbose   bool
	outputDir string
	delivered []string
}

func newConsoleSink(out io.Writer, colorize, verbose bool, outputDir string) *consoleSink {
	return &consoleSink{out: out, colorize: colorize, verbose: verbose, outputDir: outputDir}
}

func (s *consoleSink) Notify(ctx context.Context, ev download.ProgressEvent) error {
	if ev.Attachment != "" {
		return s.deliver(ctx, ev.Attachment)
	}
	if ev.Message == "" || (ev.Level == download.LevelVerbose && !s.verbose) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prefix, color := levelDecor(ev.Level)
	line := prefix + " " + ev.Message
	if s.colorize && color != "" {
		line = color + line + ansiReset
	}
	_, err := fmt.Fprintln(s.out, line)
	return err
}

func (s *consoleSink) deliver(ctx context.Context, path string) error {
	target := path
	if s.outputDir != "" {
		target = filepath.Join(s.outputDir, filepath.Base(path))
		if err := ioutils.CopyFile(ctx, path, target); err != nil {
			return fmt.Errorf("copy %s: %w", filepath.Base(path), err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, target)
	line := "♪ " + target
	if s.colorize {
		line = ansiCyan + line + ansiReset
	}
	_, err := fmt.Fprintln(s.out, line)
	return err
}

func (s *consoleSink) Delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.delivered...)
}

func levelDecor(level download.ProgressLevel) (prefix, color string) {
	switch level {
	case download.LevelError:
		return "✗", ansiRed
	case download.LevelWarning:
		return "!", ansiYellow
	case download.LevelSuccess:
		return "✓", ansiGreen
	case download.LevelVerbose:
		return " ", ansiDim
	default:
		return "›", ""
	}
}

func shouldColorize(writer io.Writer, disabled bool) bool {
	if disabled {
		return false
	}
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
