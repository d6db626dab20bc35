package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration from standard locations with environment overrides.
// Search order: ~/.repriserc, $XDG_CONFIG_HOME/reprise/config.toml, ~/.config/reprise/config.toml
// A .env file in the working directory is loaded into the environment first.
func Load() (*Config, error) {
	cfg := &Config{}

	loadDotEnv()

	path := findConfigFile()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	// Apply defaults, then environment variable overrides
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadFrom reads configuration from a specific file path.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	loadDotEnv()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadDotEnv never overrides variables already present in the environment.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}

// findConfigFile returns the first existing config file path.
func findConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	paths := []string{
		filepath.Join(home, ".repriserc"),
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	paths = append(paths, filepath.Join(xdgConfig, "reprise", "config.toml"))

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Spotify
	envString("REPRISE_SPOTIFY_CLIENT_ID", &cfg.Spotify.ClientID)
	envString("REPRISE_SPOTIFY_REDIRECT_URI", &cfg.Spotify.RedirectURI)
	envString("REPRISE_SPOTIFY_REFRESH_URL", &cfg.Spotify.RefreshURL)
	envString("REPRISE_SPOTIFY_API_BASE_URL", &cfg.Spotify.APIBaseURL)
	envString("REPRISE_SPOTIFY_TOKEN_URL", &cfg.Spotify.TokenURL)

	// Device
	envString("REPRISE_DEVICE_BACKEND", &cfg.Device.Backend)
	envString("REPRISE_DEVICE_ID", &cfg.Device.ID)
	envString("REPRISE_DEVICE_NAME", &cfg.Device.Name)
	envString("REPRISE_DEVICE_LIBRESPOT_ADDR", &cfg.Device.LibrespotAddr)
	envInt("REPRISE_DEVICE_POLL_INTERVAL", &cfg.Device.PollInterval)

	// Storage
	envString("REPRISE_STORAGE_PATH", &cfg.Storage.Path)

	// Session
	envInt("REPRISE_SESSION_STALENESS", &cfg.Session.Staleness)
	envInt("REPRISE_SESSION_FLUSH_INTERVAL", &cfg.Session.FlushInterval)
	envInt("REPRISE_SESSION_SYNC_INTERVAL", &cfg.Session.SyncInterval)

	// Notify
	envString("REPRISE_PUSHOVER_TOKEN", &cfg.Notify.PushoverToken)
	envString("REPRISE_PUSHOVER_RECIPIENT", &cfg.Notify.PushoverRecipient)

	// Server
	envString("REPRISE_SERVER_ADDR", &cfg.Server.Addr)
	if v := os.Getenv("REPRISE_SERVER_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}

	// Log
	envString("REPRISE_LOG_LEVEL", &cfg.Log.Level)
	envString("REPRISE_LOG_FORMAT", &cfg.Log.Format)
	envString("REPRISE_LOG_FILE", &cfg.Log.File)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}
