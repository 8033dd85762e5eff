package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/handiism/music-parser/internal/audio"
	"github.com/handiism/music-parser/internal/config"
	"github.com/handiism/music-parser/internal/http"
	ioutils "github.com/handiism/music-parser/internal/io"
	"github.com/handiism/music-parser/internal/logging"
	"github.com/handiism/music-parser/internal/model"
	"github.com/handiism/music-parser/internal/resolver"
	"github.com/handiism/music-parser/internal/storage"
)

// BatchOptions controls how a batch finishes.
type BatchOptions struct {
	// Deliver sends every finished artifact to the sink as an attachment.
	// Without it the batch only fills the cache.
	Deliver bool

	// Bundle delivers a batch of several units as one zip archive with a
	// playlist instead of one attachment per unit.
	Bundle bool

	// Title names the bundle archive and its playlist.
	Title string

	// Sink overrides the manager's sink for this batch.
	Sink ProgressSink
}

// BatchResult summarizes a finished batch.
type BatchResult struct {
	ID         string
	Units      []*model.Unit
	Completed  []*model.Unit
	Incomplete []*model.Unit
	Summary    string
	Archive    string
}

// Manager runs batches of units against the resolver and the content cache.
type Manager struct {
	settings     *config.Settings
	cache        *storage.Cache
	resolver     resolver.Resolver
	catalog      Catalog
	sink         ProgressSink
	watcher      *storage.Watcher
	httpClient   *http.Client
	tagger       *audio.Tagger
	playlist     *audio.PlaylistCreator
	imageService *ioutils.ImageService
	logger       *slog.Logger

	gate   *Gate
	flight singleflight.Group

	totalUnits    atomic.Int32
	finishedUnits atomic.Int32
}

// Option configures a Manager.
type Option func(*Manager)

// WithCatalog sets the catalog used by Expand.
func WithCatalog(c Catalog) Option {
	return func(m *Manager) { m.catalog = c }
}

// WithSink sets the default progress sink.
func WithSink(s ProgressSink) Option {
	return func(m *Manager) { m.sink = s }
}

// WithWatcher lets polling wake up on filesystem events.
func WithWatcher(w *storage.Watcher) Option {
	return func(m *Manager) { m.watcher = w }
}

// WithHTTPClient sets the client used to fetch artwork.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a new Manager.
func NewManager(settings *config.Settings, cache *storage.Cache, res resolver.Resolver, opts ...Option) *Manager {
	m := &Manager{
		settings: settings,
		cache:    cache,
		resolver: res,
		sink:     nopSink{},
		tagger: audio.NewTagger(audio.TagConfig{
			ModifyTags:   settings.ModifyTags,
			EmbedArtwork: settings.EmbedArtwork,
		}),
		playlist:     audio.NewPlaylistCreator(audio.ParsePlaylistFormat(settings.PlaylistFormat), settings.PlaylistExtInfo),
		imageService: ioutils.NewImageService(),
		logger:       logging.NewNop(),
		gate:         NewGate(settings.MaxConcurrentDownloads),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.httpClient == nil {
		m.httpClient = http.NewClient()
	}
	m.logger = logging.NewComponentLogger(m.logger, "download")
	return m
}

// Gate exposes the concurrency gate shared by all batches of the manager.
func (m *Manager) Gate() *Gate { return m.gate }

// Progress returns how many units have finished out of all units
// submitted to this manager.
func (m *Manager) Progress() (finished, total int32) {
	return m.finishedUnits.Load(), m.totalUnits.Load()
}

// RunBatch processes units concurrently and waits for all of them. Unit
// failures never fail the batch; they land in BatchResult.Incomplete.
// The returned error is ErrNoValidInput for an empty batch or wraps
// storage.ErrStorageUnavailable when the cache could not be reconciled or
// persisted. A persist failure still returns the result.
func (m *Manager) RunBatch(ctx context.Context, units []*model.Unit, opts BatchOptions) (*BatchResult, error) {
	sink := opts.Sink
	if sink == nil {
		sink = m.sink
	}
	rep := newReporter(sink, m.settings.NotifyTimeout(), m.logger)

	if len(units) == 0 {
		rep.notify(ctx, ProgressEvent{Line: BatchLine, Message: "Invalid input", Level: LevelError})
		return nil, ErrNoValidInput
	}

	result := &BatchResult{ID: uuid.NewString(), Units: units}
	logger := m.logger.With(logging.String(logging.FieldBatchID, result.ID))

	if report, err := m.cache.EvictExpired(); err != nil {
		rep.notify(ctx, ProgressEvent{Line: BatchLine, Message: "Storage unavailable", Level: LevelError})
		return nil, storageError(err)
	} else if report.EntriesRemoved+report.FilesRemoved+report.ArchivesRemoved > 0 {
		logger.Info("evicted expired cache content",
			logging.Int("entries", report.EntriesRemoved),
			logging.Int("files", report.FilesRemoved),
			logging.Int("archives", report.ArchivesRemoved))
	}

	total := len(units)
	m.totalUnits.Add(int32(total))
	bundle := opts.Deliver && opts.Bundle && total > 1
	logger.Info("batch started",
		logging.Int("units", total),
		logging.Bool("deliver", opts.Deliver),
		logging.Bool("bundle", bundle))
	rep.notify(ctx, ProgressEvent{Line: BatchLine, Message: fmt.Sprintf("Downloading %d song(s)", total)})

	var remaining atomic.Int32
	remaining.Store(int32(total))

	reportCtx, stopReport := context.WithCancel(ctx)
	reportDone := make(chan struct{})
	go func() {
		defer close(reportDone)
		m.reportRemaining(reportCtx, rep, &remaining, total)
	}()

	var g errgroup.Group
	for _, u := range units {
		g.Go(func() error {
			defer remaining.Add(-1)
			defer m.finishedUnits.Add(1)
			m.runUnit(ctx, rep, logger, u, opts.Deliver, bundle)
			return nil
		})
	}
	_ = g.Wait()
	stopReport()
	<-reportDone

	if bundle {
		result.Archive = m.deliverBundle(ctx, rep, logger, units, opts.Title)
	}

	for _, u := range units {
		if u.Status == model.StatusDone {
			result.Completed = append(result.Completed, u)
		} else {
			result.Incomplete = append(result.Incomplete, u)
		}
	}

	verb := "Downloaded"
	if opts.Deliver {
		verb = "Retrieved"
	}
	result.Summary = fmt.Sprintf("%s %d/%d songs", verb, len(result.Completed), total)
	level := LevelSuccess
	if len(result.Incomplete) > 0 {
		level = LevelWarning
	}
	rep.notify(ctx, ProgressEvent{Line: BatchLine, Message: result.Summary, Level: level, Close: true})

	logger.Info("batch finished",
		logging.Int("completed", len(result.Completed)),
		logging.Int("incomplete", len(result.Incomplete)))

	if err := m.cache.Persist(); err != nil {
		logging.ErrorWithContext(logger, "index persist failed", "cache_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "completions of this batch are lost on restart"))
		rep.notify(ctx, ProgressEvent{Line: BatchLine, Message: "Storage unavailable", Level: LevelError})
		return result, storageError(err)
	}
	return result, nil
}

// Retry runs the incomplete units of a previous batch again. Units keep
// their retry counters, so a unit that already used its download budget
// fails immediately.
func (m *Manager) Retry(ctx context.Context, previous *BatchResult, opts BatchOptions) (*BatchResult, error) {
	if previous == nil || len(previous.Incomplete) == 0 {
		return nil, ErrNoValidInput
	}
	sink := opts.Sink
	if sink == nil {
		sink = m.sink
	}
	newReporter(sink, m.settings.NotifyTimeout(), m.logger).notify(ctx, ProgressEvent{
		Line:    BatchLine,
		Message: fmt.Sprintf("Retrying %d songs", len(previous.Incomplete)),
	})
	return m.RunBatch(ctx, previous.Incomplete, opts)
}

func (m *Manager) reportRemaining(ctx context.Context, rep *reporter, remaining *atomic.Int32, total int) {
	interval := m.settings.ProgressInterval()
	if total <= 1 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r := remaining.Load()
			if r <= 0 {
				return
			}
			rep.notify(ctx, ProgressEvent{Line: BatchLine, Message: fmt.Sprintf("Remaining songs %d/%d", r, total)})
		}
	}
}

// storageError wraps err as ErrStorageUnavailable unless it already is.
func storageError(err error) error {
	if errors.Is(err, storage.ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, err)
}

func (m *Manager) deliverBundle(ctx context.Context, rep *reporter, logger *slog.Logger, units []*model.Unit, title string) string {
	var pending []*model.Unit
	for _, u := range units {
		if u.Status == model.StatusDeliveryPending {
			pending = append(pending, u)
		}
	}

	switch len(pending) {
	case 0:
		return ""
	case 1:
		m.deliver(ctx, rep, logger, pending[0])
		return ""
	}

	label := ioutils.SanitizeFileName(title)
	if label == "" {
		label = "bundle"
	}

	filenames := make([]string, 0, len(pending))
	for _, u := range pending {
		filenames = append(filenames, u.Filename)
	}
	playlist := storage.ArchiveFile{
		Name: m.playlist.FileName(label),
		Data: []byte(m.playlist.Create(pending)),
	}

	rep.notify(ctx, ProgressEvent{Line: BatchLine, Message: fmt.Sprintf("Bundling %d songs", len(pending))})
	archive, err := m.cache.Zip(label, filenames, playlist)
	if err == nil {
		err = rep.notify(ctx, ProgressEvent{Line: BatchLine, Message: label, Attachment: archive, Level: LevelSuccess})
	}
	if err != nil {
		logging.WarnWithContext(logger, "bundle delivery failed", "bundle_delivery_failed",
			logging.Int("units", len(pending)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "bundled units reported as failed"))
		for _, u := range pending {
			u.Fail(model.StatusDeliveryFailed, err)
			rep.notify(ctx, ProgressEvent{Line: UnitLine(u.Index), Message: "Download failed for: " + u.DisplayName(), Level: LevelError, Close: true})
		}
		return ""
	}

	for _, u := range pending {
		m.markDelivered(logger, u)
		u.SetStatus(model.StatusDone)
		rep.notify(ctx, ProgressEvent{Line: UnitLine(u.Index), Close: true})
	}
	return archive
}

// deliver sends a single artifact as an attachment and finishes the unit.
func (m *Manager) deliver(ctx context.Context, rep *reporter, logger *slog.Logger, u *model.Unit) {
	line := UnitLine(u.Index)
	rep.notify(ctx, ProgressEvent{Line: line, Message: "Download completed! Now Uploading: " + u.DisplayName()})

	err := rep.notify(ctx, ProgressEvent{
		Line:       line,
		Message:    u.DisplayName(),
		Attachment: m.cache.Path(u.Filename),
		Level:      LevelSuccess,
	})
	if err != nil {
		m.fail(ctx, rep, logger, u, model.StatusDeliveryFailed, err)
		return
	}

	m.markDelivered(logger, u)
	u.AddLog("Uploaded:", u.DisplayName())
	u.SetStatus(model.StatusDone)
	rep.notify(ctx, ProgressEvent{Line: line, Close: true})
}

func (m *Manager) markDelivered(logger *slog.Logger, u *model.Unit) {
	if err := m.cache.MarkDelivered(u.ExternalID); err != nil {
		logger.Warn("mark delivered failed",
			logging.String(logging.FieldExternalID, u.ExternalID),
			logging.Error(err))
	}
}

func (m *Manager) fail(ctx context.Context, rep *reporter, logger *slog.Logger, u *model.Unit, status model.Status, err error) {
	u.Fail(status, err)
	logging.WarnWithContext(logger, "unit failed", "unit_failed",
		logging.Int(logging.FieldUnitIndex, u.Index),
		logging.String("unit", u.DisplayName()),
		logging.String("status", string(status)),
		logging.Error(err),
		logging.String(logging.FieldImpact, "unit reported as incomplete"),
		logging.String("trail", u.LogTrail()))
	rep.notify(ctx, ProgressEvent{
		Line:    UnitLine(u.Index),
		Message: "Download failed for: " + u.DisplayName(),
		Level:   LevelError,
		Close:   true,
	})
}

// tag writes metadata and artwork into a freshly downloaded artifact.
// Failures only cost the tags.
func (m *Manager) tag(ctx context.Context, logger *slog.Logger, u *model.Unit) {
	if !m.tagger.Enabled() || !strings.EqualFold(filepath.Ext(u.Filename), ".mp3") {
		return
	}

	var artwork []byte
	if m.settings.EmbedArtwork && u.Thumbnail != "" {
		data, err := m.httpClient.DownloadBytes(ctx, u.Thumbnail)
		if err == nil {
			artwork, err = m.imageService.PrepareArtwork(ctx, data, m.settings.ArtworkMaxSize)
		}
		if err != nil {
			logger.Debug("artwork unavailable", logging.String("url", u.Thumbnail), logging.Error(err))
			artwork = nil
		}
	}

	if err := m.tagger.Tag(m.cache.Path(u.Filename), u, artwork); err != nil {
		logger.Warn("tagging failed",
			logging.String("file", u.Filename),
			logging.Error(err))
		return
	}
	u.AddLog("Tagged:", u.Filename)
}
