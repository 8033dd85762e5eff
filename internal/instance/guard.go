package instance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	ioutils "github.com/handiism/music-parser/internal/io"
)

// ErrAlreadyRunning means another server holds the lock.
var ErrAlreadyRunning = errors.New("another music-parser server is already running")

const (
	lockFileName = "music-parser.lock"
	stopFileName = "music-parser.stop"
)

// Guard is the single-instance lock held by a running server, plus the
// stop sentinel other invocations use to ask it to shut down.
type Guard struct {
	dir  string
	lock *flock.Flock
}

// Acquire takes the lock in stateDir. A stale stop sentinel from an
// earlier run is removed.
func Acquire(stateDir string) (*Guard, error) {
	if err := ioutils.EnsureDir(stateDir); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	g := &Guard{dir: stateDir, lock: flock.New(filepath.Join(stateDir, lockFileName))}
	ok, err := g.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}

	if err := os.Remove(g.stopPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = g.lock.Unlock()
		return nil, fmt.Errorf("clear stop request: %w", err)
	}
	return g, nil
}

// RequestStop asks the server owning stateDir to stop.
func RequestStop(stateDir string) error {
	if err := ioutils.EnsureDir(stateDir); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(stateDir, stopFileName), []byte(time.Now().UTC().Format(time.RFC3339)), 0o644)
}

// StopRequested reports whether a stop was requested since Acquire.
func (g *Guard) StopRequested() bool {
	_, err := os.Stat(g.stopPath())
	return err == nil
}

// Wait blocks until a stop is requested or ctx ends, checking every
// interval. It returns nil for a stop request and ctx.Err() otherwise.
func (g *Guard) Wait(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if g.StopRequested() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release removes the stop sentinel and unlocks.
func (g *Guard) Release() error {
	if err := os.Remove(g.stopPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return g.lock.Unlock()
}

func (g *Guard) stopPath() string {
	return filepath.Join(g.dir, stopFileName)
}
