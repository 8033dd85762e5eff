package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Settings holds all configuration options.
type Settings struct {
	// Storage
	DownloadPath  string   `toml:"download_path"`
	StateDir      string   `toml:"state_dir"`
	RetentionDays float64  `toml:"retention_days"`
	PartialExts   []string `toml:"partial_extensions"`

	// Orchestration
	MaxConcurrentDownloads       int     `toml:"max_concurrent_downloads"`
	DownloadMaxRetries           int     `toml:"download_max_retries"`
	DownloadTimeoutSeconds       float64 `toml:"download_timeout_seconds"`
	PollIntervalSeconds          float64 `toml:"poll_interval_seconds"`
	ProgressIntervalSeconds      float64 `toml:"progress_interval_seconds"`
	NotifyTimeoutSeconds         float64 `toml:"notify_timeout_seconds"`
	EvictDeliveredBeforeDownload bool    `toml:"evict_delivered_before_download"`
	WatchFilesystem              bool    `toml:"watch_filesystem"`

	// Tags and bundles
	ModifyTags      bool   `toml:"modify_tags"`
	EmbedArtwork    bool   `toml:"embed_artwork"`
	ArtworkMaxSize  int    `toml:"artwork_max_size"`
	PlaylistFormat  string `toml:"playlist_format"` // m3u, pls
	PlaylistExtInfo bool   `toml:"playlist_extended"`

	// Resolver
	YtDlpBinary      string `toml:"ytdlp_binary"`
	AudioFormat      string `toml:"audio_format"`
	AudioQuality     string `toml:"audio_quality"`
	SearchCandidates int    `toml:"search_candidates"`

	// Catalog
	SpotifyClientID     string `toml:"spotify_client_id"`
	SpotifyClientSecret string `toml:"spotify_client_secret"`

	// Logging
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	// HTTP front-end
	APIBind         string  `toml:"api_bind"`
	AdminUserIDs    []int64 `toml:"admin_user_ids"`
	TokenTTLMinutes float64 `toml:"token_ttl_minutes"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	stateDir := filepath.Join(os.TempDir(), "music-parser")
	if cacheDir, err := os.UserCacheDir(); err == nil {
		stateDir = filepath.Join(cacheDir, "music-parser")
	}

	return &Settings{
		DownloadPath:  filepath.Join(homeDir, "Music", "music-parser"),
		StateDir:      stateDir,
		RetentionDays: 3,
		PartialExts:   []string{".part", ".ytdl", ".temp", ".tmp", ".webm", ".m4a"},

		MaxConcurrentDownloads:       5,
		DownloadMaxRetries:           3,
		DownloadTimeoutSeconds:       300,
		PollIntervalSeconds:          2,
		ProgressIntervalSeconds:      2,
		NotifyTimeoutSeconds:         10,
		EvictDeliveredBeforeDownload: true,
		WatchFilesystem:              true,

		ModifyTags:      true,
		EmbedArtwork:    true,
		ArtworkMaxSize:  500,
		PlaylistFormat:  "m3u",
		PlaylistExtInfo: true,

		YtDlpBinary:      "yt-dlp",
		AudioFormat:      "mp3",
		AudioQuality:     "256K",
		SearchCandidates: 5,

		LogLevel:  "info",
		LogFormat: "console",

		APIBind:         ":8080",
		TokenTTLMinutes: 15,
	}
}

// DefaultConfigPath returns ~/.config/music-parser/config.toml.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "music-parser.toml"
	}
	return filepath.Join(dir, "music-parser", "config.toml")
}

// Load reads settings from a TOML file and applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := settings.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Save writes settings to a TOML file.
func (s *Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(s)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides settings from environment variables.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("DOWNLOAD_PATH"); ok && v != "" {
		s.DownloadPath = v
	}
	if v, ok := lookup("SPOTIFY_CLIENT_ID"); ok && v != "" {
		s.SpotifyClientID = v
	}
	if v, ok := lookup("SPOTIFY_CLIENT_SECRET"); ok && v != "" {
		s.SpotifyClientSecret = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		s.APIBind = ":" + v
	}
	if v, ok := lookup("ADMIN_USER_IDS"); ok && v != "" {
		ids, err := parseIDs(v)
		if err != nil {
			return fmt.Errorf("ADMIN_USER_IDS: %w", err)
		}
		s.AdminUserIDs = ids
	}
	return nil
}

// Validate rejects settings the orchestrator cannot run with.
func (s *Settings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.DownloadPath) == "" {
		errs = append(errs, errors.New("download_path must be set"))
	}
	if s.MaxConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("max_concurrent_downloads must be positive"))
	}
	if s.DownloadMaxRetries <= 0 {
		errs = append(errs, errors.New("download_max_retries must be positive"))
	}
	if s.DownloadTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("download_timeout_seconds must be positive"))
	}
	if s.PollIntervalSeconds <= 0 {
		errs = append(errs, errors.New("poll_interval_seconds must be positive"))
	}
	if s.RetentionDays <= 0 {
		errs = append(errs, errors.New("retention_days must be positive"))
	}
	switch s.PlaylistFormat {
	case "m3u", "pls":
	default:
		errs = append(errs, fmt.Errorf("playlist_format: unsupported value %q", s.PlaylistFormat))
	}
	return errors.Join(errs...)
}

func (s *Settings) DownloadTimeout() time.Duration { return seconds(s.DownloadTimeoutSeconds) }

func (s *Settings) PollInterval() time.Duration { return seconds(s.PollIntervalSeconds) }

func (s *Settings) ProgressInterval() time.Duration { return seconds(s.ProgressIntervalSeconds) }

func (s *Settings) NotifyTimeout() time.Duration { return seconds(s.NotifyTimeoutSeconds) }

func (s *Settings) Retention() time.Duration { return seconds(s.RetentionDays * 24 * 60 * 60) }

func (s *Settings) TokenTTL() time.Duration { return seconds(s.TokenTTLMinutes * 60) }

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func parseIDs(value string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
