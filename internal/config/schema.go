package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Device  DeviceConfig  `toml:"device"`
	Storage StorageConfig `toml:"storage"`
	Session SessionConfig `toml:"session"`
	Notify  NotifyConfig  `toml:"notify"`
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`
}

// SpotifyConfig holds Spotify API settings.
type SpotifyConfig struct {
	ClientID    string `toml:"client_id"`
	RedirectURI string `toml:"redirect_uri"`
	// RefreshURL, when set, refreshes tokens through a site backend
	// instead of calling the Spotify token endpoint directly.
	RefreshURL string `toml:"refresh_url"`
	APIBaseURL string `toml:"api_base_url"`
	TokenURL   string `toml:"token_url"`
}

// DeviceConfig selects and configures the playback device backend.
type DeviceConfig struct {
	Backend       string `toml:"backend"`
	ID            string `toml:"id"`
	Name          string `toml:"name"`
	LibrespotAddr string `toml:"librespot_addr"`
	PollInterval  int    `toml:"poll_interval"`
}

// StorageConfig holds the persistent key-value store location.
type StorageConfig struct {
	Path string `toml:"path"`
}

// SessionConfig holds the session timing knobs. Durations are milliseconds
// except Staleness, which is minutes.
type SessionConfig struct {
	Staleness      int `toml:"staleness"`
	FlushInterval  int `toml:"flush_interval"`
	SyncInterval   int `toml:"sync_interval"`
	SaveDebounce   int `toml:"save_debounce"`
	ReadySettle    int `toml:"ready_settle"`
	TransferSettle int `toml:"transfer_settle"`
	PauseSettle    int `toml:"pause_settle"`
	RetryDelay     int `toml:"retry_delay"`
}

// NotifyConfig holds push notification settings.
type NotifyConfig struct {
	PushoverToken     string `toml:"pushover_token"`
	PushoverRecipient string `toml:"pushover_recipient"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// StalenessWindow returns the maximum snapshot age that may be restored.
func (c *SessionConfig) StalenessWindow() time.Duration {
	return time.Duration(c.Staleness) * time.Minute
}

// FlushEvery returns the periodic snapshot flush interval.
func (c *SessionConfig) FlushEvery() time.Duration { return ms(c.FlushInterval) }

// SyncEvery returns the periodic Web API sync interval.
func (c *SessionConfig) SyncEvery() time.Duration { return ms(c.SyncInterval) }

// Debounce returns the delay between a state change and its save.
func (c *SessionConfig) Debounce() time.Duration { return ms(c.SaveDebounce) }

// ReadyDelay returns the wait between device readiness and restoration.
func (c *SessionConfig) ReadyDelay() time.Duration { return ms(c.ReadySettle) }

// TransferDelay returns the wait between a device transfer and resume.
func (c *SessionConfig) TransferDelay() time.Duration { return ms(c.TransferSettle) }

// PauseDelay returns the wait between a resume and the follow-up pause.
func (c *SessionConfig) PauseDelay() time.Duration { return ms(c.PauseSettle) }

// RetryBackoff returns the wait before a transfer-and-retry cycle.
func (c *SessionConfig) RetryBackoff() time.Duration { return ms(c.RetryDelay) }

// PollEvery returns the Web API device polling interval.
func (c *DeviceConfig) PollEvery() time.Duration { return ms(c.PollInterval) }
