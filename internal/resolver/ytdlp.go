package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ioutils "github.com/handiism/music-parser/internal/io"
	"github.com/handiism/music-parser/internal/logging"
)

// Runner abstracts command execution for testability.
type Runner interface {
	// Output runs the command to completion and returns stdout.
	Output(ctx context.Context, binary string, args []string) ([]byte, error)
	// Start launches the command and returns a function that waits for it.
	Start(ctx context.Context, binary string, args []string) (wait func() error, err error)
}

// Config configures the yt-dlp adapter.
type Config struct {
	Binary          string
	AudioFormat     string
	AudioQuality    string
	Candidates      int
	IdentifyTimeout time.Duration
	// DownloadTimeout bounds a started download process. It is independent
	// of how long the orchestrator waits for the file.
	DownloadTimeout time.Duration
}

// YtDlp resolves and downloads media with the yt-dlp CLI.
type YtDlp struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// Option configures YtDlp.
type Option func(*YtDlp)

// WithRunner injects a custom runner (primarily for tests).
func WithRunner(r Runner) Option {
	return func(y *YtDlp) {
		if r != nil {
			y.runner = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(y *YtDlp) { y.logger = logging.NewComponentLogger(logger, "resolver") }
}

// NewYtDlp creates the adapter, filling in defaults for zero config fields.
func NewYtDlp(cfg Config, opts ...Option) *YtDlp {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "yt-dlp"
	}
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = "mp3"
	}
	if cfg.AudioQuality == "" {
		cfg.AudioQuality = "256K"
	}
	if cfg.Candidates <= 0 {
		cfg.Candidates = 5
	}
	if cfg.IdentifyTimeout <= 0 {
		cfg.IdentifyTimeout = time.Minute
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 15 * time.Minute
	}

	y := &YtDlp{
		cfg:    cfg,
		runner: commandRunner{},
		logger: logging.NewComponentLogger(nil, "resolver"),
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

type ytEntry struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Thumbnail  string  `json:"thumbnail"`
	Thumbnails []struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
	Entries []ytEntry `json:"entries"`
}

func (e ytEntry) thumbnail() string {
	if e.Thumbnail != "" {
		return e.Thumbnail
	}
	if n := len(e.Thumbnails); n > 0 {
		return e.Thumbnails[n-1].URL
	}
	return ""
}

// Identify asks yt-dlp for metadata without downloading. Links are looked
// up directly; queries run a search and the candidate closest to the
// duration hint is chosen.
func (y *YtDlp) Identify(ctx context.Context, req Request) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, y.cfg.IdentifyTimeout)
	defer cancel()

	var args []string
	switch {
	case req.Link != "":
		args = []string{"--dump-single-json", "--no-playlist", "--skip-download", "--no-warnings", req.Link}
	case req.Query != "":
		search := "ytsearch" + strconv.Itoa(y.cfg.Candidates) + ":" + req.Query
		args = []string{"--dump-single-json", "--flat-playlist", "--no-warnings", search}
	default:
		return Identity{}, fmt.Errorf("%w: empty request", ErrResolution)
	}

	out, err := y.runner.Output(ctx, y.cfg.Binary, args)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrResolution, err)
	}

	var root ytEntry
	if err := json.Unmarshal(out, &root); err != nil {
		return Identity{}, fmt.Errorf("%w: decode yt-dlp output: %v", ErrResolution, err)
	}

	chosen := root
	if len(root.Entries) > 0 || req.Query != "" {
		candidates := make([]Candidate, 0, len(root.Entries))
		for _, e := range root.Entries {
			if e.ID == "" {
				continue
			}
			candidates = append(candidates, Candidate{ID: e.ID, Title: e.Title, Duration: e.Duration, Thumbnail: e.thumbnail()})
		}
		c, ok := SelectCandidate(candidates, req.DurationHint)
		if !ok {
			return Identity{}, fmt.Errorf("%w: no results", ErrResolution)
		}
		chosen = ytEntry{ID: c.ID, Title: c.Title, Duration: c.Duration, Thumbnail: c.Thumbnail}
	}

	if chosen.ID == "" {
		return Identity{}, fmt.Errorf("%w: missing id in yt-dlp output", ErrResolution)
	}

	identity := Identity{
		ExternalID: chosen.ID,
		Title:      chosen.Title,
		Duration:   chosen.Duration,
		Thumbnail:  chosen.thumbnail(),
		Filename:   y.filename(chosen.Title, chosen.ID),
	}

	y.logger.Debug("identified media",
		logging.String(logging.FieldExternalID, identity.ExternalID),
		logging.String("title", identity.Title))
	return identity, nil
}

// BeginDownload starts yt-dlp in the background, extracting audio to
// destPath. The process outlives ctx, bounded by Config.DownloadTimeout.
func (y *YtDlp) BeginDownload(ctx context.Context, externalID, destPath string) error {
	if externalID == "" || destPath == "" {
		return fmt.Errorf("%w: missing id or destination", ErrDownloadStart)
	}

	ext := filepath.Ext(destPath)
	template := strings.ReplaceAll(strings.TrimSuffix(destPath, ext), "%", "%%") + ".%(ext)s"
	args := []string{
		"--extract-audio",
		"--audio-format", y.cfg.AudioFormat,
		"--audio-quality", y.cfg.AudioQuality,
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"--output", template,
		"https://www.youtube.com/watch?v=" + externalID,
	}

	procCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), y.cfg.DownloadTimeout)
	wait, err := y.runner.Start(procCtx, y.cfg.Binary, args)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrDownloadStart, err)
	}

	go func() {
		defer cancel()
		if err := wait(); err != nil {
			logging.WarnWithContext(y.logger, "yt-dlp exited with error", "resolver_download_failed",
				logging.String(logging.FieldExternalID, externalID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "artifact will not appear; the unit times out"))
			return
		}
		y.logger.Debug("yt-dlp finished", logging.String(logging.FieldExternalID, externalID))
	}()
	return nil
}

// filename is "<title> [<id>].<format>", so two media with the same title
// never share an artifact.
func (y *YtDlp) filename(title, id string) string {
	base := ioutils.SanitizeFileName(title)
	idPart := ioutils.SanitizeFileName(id)
	switch {
	case base == "":
		base = idPart
	case idPart != "":
		base = base + " [" + idPart + "]"
	}
	return base + "." + y.cfg.AudioFormat
}

type commandRunner struct{}

func (commandRunner) Output(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, commandError(err, stderr.String())
	}
	return out, nil
}

func (commandRunner) Start(ctx context.Context, binary string, args []string) (func() error, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return func() error {
		if err := cmd.Wait(); err != nil {
			return commandError(err, stderr.String())
		}
		return nil
	}, nil
}

func commandError(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if len(stderr) > 500 {
		stderr = stderr[len(stderr)-500:]
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && stderr != "" {
		return fmt.Errorf("%w: %s", err, stderr)
	}
	return err
}
