package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/handiism/music-parser/internal/catalog"
	"github.com/handiism/music-parser/internal/config"
	"github.com/handiism/music-parser/internal/download"
	"github.com/handiism/music-parser/internal/http"
	ioutils "github.com/handiism/music-parser/internal/io"
	"github.com/handiism/music-parser/internal/logging"
	"github.com/handiism/music-parser/internal/resolver"
	"github.com/handiism/music-parser/internal/storage"
	"github.com/handiism/music-parser/internal/tui"
)

func main() {
	configFlag := flag.String("config", config.DefaultConfigPath(), "Path to config file")
	flag.Parse()

	if err := run(*configFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := ioutils.EnsureDir(settings.DownloadPath); err != nil {
		return err
	}

	// stdout belongs to the TUI; logs only go to the diagnostics file
	logger, err := logging.New(logging.Options{
		Level:       settings.LogLevel,
		Format:      "json",
		OutputPaths: []string{filepath.Join(settings.DownloadPath, logging.DiagnosticsFileName)},
		NoColor:     true,
	})
	if err != nil {
		return err
	}

	cache, err := storage.Open(settings.DownloadPath,
		storage.WithRetention(settings.Retention()),
		storage.WithPartialExtensions(settings.PartialExts),
		storage.WithArtifactExtension(settings.AudioFormat),
		storage.WithLogger(logger))
	if err != nil {
		return err
	}

	events := make(chan download.ProgressEvent, 64)
	client := http.NewClient()
	opts := []download.Option{
		download.WithLogger(logger),
		download.WithHTTPClient(client),
		download.WithSink(tui.Sink(events)),
	}
	if settings.SpotifyClientID != "" && settings.SpotifyClientSecret != "" {
		opts = append(opts, download.WithCatalog(catalog.NewSpotify(
			settings.SpotifyClientID, settings.SpotifyClientSecret,
			catalog.WithHTTP(client), catalog.WithLogger(logger))))
	}
	if settings.WatchFilesystem {
		if w, err := cache.Watch(); err == nil {
			defer w.Close()
			opts = append(opts, download.WithWatcher(w))
		}
	}

	res := resolver.NewYtDlp(resolver.Config{
		Binary:       settings.YtDlpBinary,
		AudioFormat:  settings.AudioFormat,
		AudioQuality: settings.AudioQuality,
		Candidates:   settings.SearchCandidates,
	}, resolver.WithLogger(logger))

	manager := download.NewManager(settings, cache, res, opts...)
	return tui.Run(settings, manager, events)
}
