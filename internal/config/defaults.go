package config

import (
	"os"
	"path/filepath"
)

const (
	BackendLibrespot = "librespot"
	BackendWebAPI    = "webapi"
)

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			RedirectURI: "http://127.0.0.1:8888/callback",
			APIBaseURL:  "https://api.spotify.com/v1",
			TokenURL:    "https://accounts.spotify.com/api/token",
		},
		Device: DeviceConfig{
			Backend:       BackendLibrespot,
			Name:          "reprise",
			LibrespotAddr: "http://127.0.0.1:3678",
			PollInterval:  1000,
		},
		Storage: StorageConfig{
			Path: defaultStoragePath(),
		},
		Session: SessionConfig{
			Staleness:      30,
			FlushInterval:  5000,
			SyncInterval:   30000,
			SaveDebounce:   1000,
			ReadySettle:    2000,
			TransferSettle: 1000,
			PauseSettle:    2000,
			RetryDelay:     1000,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	d := Default()

	// Spotify
	if c.Spotify.RedirectURI == "" {
		c.Spotify.RedirectURI = d.Spotify.RedirectURI
	}
	if c.Spotify.APIBaseURL == "" {
		c.Spotify.APIBaseURL = d.Spotify.APIBaseURL
	}
	if c.Spotify.TokenURL == "" {
		c.Spotify.TokenURL = d.Spotify.TokenURL
	}

	// Device
	if c.Device.Backend == "" {
		c.Device.Backend = d.Device.Backend
	}
	if c.Device.Name == "" {
		c.Device.Name = d.Device.Name
	}
	if c.Device.LibrespotAddr == "" {
		c.Device.LibrespotAddr = d.Device.LibrespotAddr
	}
	if c.Device.PollInterval == 0 {
		c.Device.PollInterval = d.Device.PollInterval
	}

	// Storage
	if c.Storage.Path == "" {
		c.Storage.Path = d.Storage.Path
	}

	// Session
	s, ds := &c.Session, d.Session
	if s.Staleness == 0 {
		s.Staleness = ds.Staleness
	}
	if s.FlushInterval == 0 {
		s.FlushInterval = ds.FlushInterval
	}
	if s.SyncInterval == 0 {
		s.SyncInterval = ds.SyncInterval
	}
	if s.SaveDebounce == 0 {
		s.SaveDebounce = ds.SaveDebounce
	}
	if s.ReadySettle == 0 {
		s.ReadySettle = ds.ReadySettle
	}
	if s.TransferSettle == 0 {
		s.TransferSettle = ds.TransferSettle
	}
	if s.PauseSettle == 0 {
		s.PauseSettle = ds.PauseSettle
	}
	if s.RetryDelay == 0 {
		s.RetryDelay = ds.RetryDelay
	}

	// Server
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

func defaultStoragePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "reprise.db"
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "reprise", "reprise.db")
}
