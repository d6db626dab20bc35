package config

import (
	"errors"
	"fmt"
	"net/url"

	rerrors "github.com/tessro/reprise/internal/errors"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Spotify.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("spotify: %w", err))
	}
	if err := c.Device.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("device: %w", err))
	}
	if err := c.Session.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("session: %w", err))
	}
	if err := c.Notify.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("notify: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", rerrors.ErrInvalidConfig, errors.Join(errs...))
}

// Validate checks SpotifyConfig for errors.
func (c *SpotifyConfig) Validate() error {
	for name, raw := range map[string]string{
		"redirect_uri": c.RedirectURI,
		"refresh_url":  c.RefreshURL,
		"api_base_url": c.APIBaseURL,
		"token_url":    c.TokenURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s: %q is not an absolute URL", name, raw)
		}
	}
	return nil
}

// Validate checks DeviceConfig for errors.
func (c *DeviceConfig) Validate() error {
	switch c.Backend {
	case "", BackendLibrespot, BackendWebAPI:
		// valid
	default:
		return fmt.Errorf("invalid backend: %s (must be librespot or webapi)", c.Backend)
	}
	if c.PollInterval < 0 {
		return errors.New("poll_interval must be non-negative")
	}
	return nil
}

// Validate checks SessionConfig for errors.
func (c *SessionConfig) Validate() error {
	if c.Staleness < 0 {
		return errors.New("staleness must be non-negative")
	}
	for name, v := range map[string]int{
		"flush_interval":  c.FlushInterval,
		"sync_interval":   c.SyncInterval,
		"save_debounce":   c.SaveDebounce,
		"ready_settle":    c.ReadySettle,
		"transfer_settle": c.TransferSettle,
		"pause_settle":    c.PauseSettle,
		"retry_delay":     c.RetryDelay,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative", name)
		}
	}
	return nil
}

// Validate checks NotifyConfig for errors.
func (c *NotifyConfig) Validate() error {
	if (c.PushoverToken == "") != (c.PushoverRecipient == "") {
		return errors.New("pushover_token and pushover_recipient must be set together")
	}
	return nil
}

// Validate checks LogConfig for errors.
func (c *LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Level)
	}
	switch c.Format {
	case "", "auto", "console", "json":
		// valid
	default:
		return fmt.Errorf("invalid log format: %s (must be auto, console, or json)", c.Format)
	}
	return nil
}
