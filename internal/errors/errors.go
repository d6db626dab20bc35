package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error types for the playback session failure classes.
var (
	ErrAuthRequired           = errors.New("spotify authentication required")
	ErrDeviceNotReady         = errors.New("playback device not ready")
	ErrDeviceInactive         = errors.New("playback device not active")
	ErrRestorationUnavailable = errors.New("no playback snapshot to restore")
	ErrRestorationFailed      = errors.New("playback restoration failed")
	ErrRemoteService          = errors.New("spotify service error")
	ErrPermissionDenied       = errors.New("action not permitted for this account")
	ErrInvalidConfig          = errors.New("invalid configuration")
)

// RepriseError wraps an error with a user-friendly suggestion.
type RepriseError struct {
	Err        error
	Suggestion string
}

func (e *RepriseError) Error() string {
	return e.Err.Error()
}

func (e *RepriseError) Unwrap() error {
	return e.Err
}

// WithSuggestion wraps an error with a helpful suggestion.
func WithSuggestion(err error, suggestion string) error {
	return &RepriseError{
		Err:        err,
		Suggestion: suggestion,
	}
}

// Is reports whether any error in err's chain matches target.
// It lets callers use this package in place of the standard errors package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// GetSuggestion returns a suggestion for the given error.
func GetSuggestion(err error) string {
	if err == nil {
		return ""
	}

	var repriseErr *RepriseError
	if errors.As(err, &repriseErr) && repriseErr.Suggestion != "" {
		return repriseErr.Suggestion
	}

	switch {
	case errors.Is(err, ErrAuthRequired):
		return "Run 'reprise auth login' to connect your Spotify account"
	case errors.Is(err, ErrDeviceNotReady):
		return "Wait for the player to connect, or check that the playback device is running"
	case errors.Is(err, ErrDeviceInactive):
		return "Start playback on this device, or transfer playback to it from Spotify"
	case errors.Is(err, ErrPermissionDenied):
		return "This feature requires Spotify Premium"
	case errors.Is(err, ErrRestorationFailed):
		return "The saved track could not be resumed. Pick something new to play"
	case errors.Is(err, ErrInvalidConfig):
		return "Check ~/.repriserc or the REPRISE_* environment variables"
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "429") {
		return "Too many requests. Wait a moment and try again"
	}

	if strings.Contains(errStr, "network") || strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") {
		return "Check your internet connection and try again"
	}

	if errors.Is(err, ErrRemoteService) {
		return "Spotify is having issues. Try again in a moment"
	}

	return ""
}

// Format returns a formatted error message with suggestion if available.
func Format(err error) string {
	if err == nil {
		return ""
	}

	suggestion := GetSuggestion(err)
	if suggestion != "" {
		return fmt.Sprintf("Error: %s\n\nSuggestion: %s", err.Error(), suggestion)
	}

	return fmt.Sprintf("Error: %s", err.Error())
}
