package auth

import (
	"golang.org/x/oauth2"
)

const (
	// SpotifyAuthURL is the Spotify authorization endpoint.
	SpotifyAuthURL = "https://accounts.spotify.com/authorize"

	// SpotifyTokenURL is the Spotify token endpoint.
	SpotifyTokenURL = "https://accounts.spotify.com/api/token"

	// DefaultRedirectURI is the default callback URI for the local server.
	DefaultRedirectURI = "http://127.0.0.1:8888/callback"
)

// DefaultScopes cover playback control plus the streaming device.
var DefaultScopes = []string{
	"user-read-playback-state",
	"user-modify-playback-state",
	"user-read-currently-playing",
	"user-read-private",
	"user-read-email",
	"streaming",
}

// Config holds the OAuth client settings.
type Config struct {
	ClientID    string
	RedirectURI string
	AuthURL     string
	TokenURL    string
	Scopes      []string
}

// NewConfig creates a new OAuth configuration with defaults.
func NewConfig(clientID string) *Config {
	return &Config{
		ClientID:    clientID,
		RedirectURI: DefaultRedirectURI,
		AuthURL:     SpotifyAuthURL,
		TokenURL:    SpotifyTokenURL,
		Scopes:      DefaultScopes,
	}
}

// OAuth2 returns the equivalent oauth2 configuration. Spotify's PKCE flow
// is a public client, so the client id travels in the request parameters.
func (c *Config) OAuth2() *oauth2.Config {
	authURL := c.AuthURL
	if authURL == "" {
		authURL = SpotifyAuthURL
	}
	tokenURL := c.TokenURL
	if tokenURL == "" {
		tokenURL = SpotifyTokenURL
	}
	return &oauth2.Config{
		ClientID:    c.ClientID,
		RedirectURL: c.RedirectURI,
		Scopes:      c.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// BuildAuthURL constructs the Spotify authorization URL with PKCE parameters.
func (c *Config) BuildAuthURL(pkce *PKCE) string {
	return c.OAuth2().AuthCodeURL(pkce.State, oauth2.S256ChallengeOption(pkce.Verifier))
}
