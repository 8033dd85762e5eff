// Package config provides configuration management for music-parser.
//
// Settings are read from a TOML file (missing file means defaults) and
// then overridden from the environment:
//
//	DOWNLOAD_PATH          download_path
//	SPOTIFY_CLIENT_ID      spotify_client_id
//	SPOTIFY_CLIENT_SECRET  spotify_client_secret
//	ADMIN_USER_IDS         admin_user_ids (comma separated)
//	PORT                   api_bind (":" + PORT)
//
// # Loading
//
//	settings, err := config.Load(config.DefaultConfigPath())
//
// # Durations
//
// Time based options are stored as plain numbers in the file and exposed
// as time.Duration through helpers such as DownloadTimeout and Retention.
package config
