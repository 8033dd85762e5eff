package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/handiism/music-parser/internal/catalog"
	"github.com/handiism/music-parser/internal/config"
	"github.com/handiism/music-parser/internal/download"
	"github.com/handiism/music-parser/internal/http"
	ioutils "github.com/handiism/music-parser/internal/io"
	"github.com/handiism/music-parser/internal/logging"
	"github.com/handiism/music-parser/internal/resolver"
	"github.com/handiism/music-parser/internal/storage"
)

type commandContext struct {
	configFlag  *string
	noColorFlag *bool

	configOnce sync.Once
	settings   *config.Settings
	configErr  error
}

func newCommandContext(configFlag *string, noColorFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		noColorFlag: noColorFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag != nil {
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			return path
		}
	}
	return config.DefaultConfigPath()
}

func (c *commandContext) ensureSettings() (*config.Settings, error) {
	c.configOnce.Do(func() {
		settings, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := ioutils.EnsureDir(settings.DownloadPath); err != nil {
			c.configErr = fmt.Errorf("create download dir: %w", err)
			return
		}
		c.settings = settings
	})
	return c.settings, c.configErr
}

func (c *commandContext) noColor() bool {
	return c.noColorFlag != nil && *c.noColorFlag
}

func (c *commandContext) logger() (*slog.Logger, error) {
	settings, err := c.ensureSettings()
	if err != nil {
		return nil, err
	}
	return logging.NewFromSettings(settings, c.noColor())
}

func (c *commandContext) openCache(logger *slog.Logger) (*storage.Cache, error) {
	settings, err := c.ensureSettings()
	if err != nil {
		return nil, err
	}
	return storage.Open(settings.DownloadPath,
		storage.WithRetention(settings.Retention()),
		storage.WithPartialExtensions(settings.PartialExts),
		storage.WithArtifactExtension(settings.AudioFormat),
		storage.WithLogger(logger))
}

// runtime bundles what a command needs to run batches.
type runtime struct {
	settings *config.Settings
	logger   *slog.Logger
	cache    *storage.Cache
	manager  *download.Manager
	watcher  *storage.Watcher
}

func (r *runtime) Close() {
	if r.watcher != nil {
		if err := r.watcher.Close(); err != nil {
			r.logger.Debug("close watcher", logging.Error(err))
		}
	}
}

// newRuntime wires the resolver, catalog, cache and manager from settings.
// sink may be nil.
func (c *commandContext) newRuntime(sink download.ProgressSink) (*runtime, error) {
	settings, err := c.ensureSettings()
	if err != nil {
		return nil, err
	}
	logger, err := c.logger()
	if err != nil {
		return nil, err
	}
	cache, err := c.openCache(logger)
	if err != nil {
		return nil, err
	}

	rt := &runtime{settings: settings, logger: logger, cache: cache}

	client := http.NewClient()
	res := resolver.NewYtDlp(resolver.Config{
		Binary:       settings.YtDlpBinary,
		AudioFormat:  settings.AudioFormat,
		AudioQuality: settings.AudioQuality,
		Candidates:   settings.SearchCandidates,
	}, resolver.WithLogger(logger))

	opts := []download.Option{
		download.WithLogger(logger),
		download.WithHTTPClient(client),
	}
	if sink != nil {
		opts = append(opts, download.WithSink(sink))
	}
	if settings.SpotifyClientID != "" && settings.SpotifyClientSecret != "" {
		opts = append(opts, download.WithCatalog(catalog.NewSpotify(
			settings.SpotifyClientID,
			settings.SpotifyClientSecret,
			catalog.WithHTTP(client),
			catalog.WithLogger(logger))))
	} else {
		logger.Debug("spotify credentials not configured; catalog links will be skipped")
	}
	if settings.WatchFilesystem {
		w, err := cache.Watch()
		if err != nil {
			logging.WarnWithContext(logger, "filesystem watch unavailable", "watch_unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "downloads are detected by polling only"))
		} else {
			rt.watcher = w
			opts = append(opts, download.WithWatcher(w))
		}
	}

	rt.manager = download.NewManager(settings, cache, res, opts...)
	return rt, nil
}

