package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// ErrRefreshRejected means the refresh token is no longer accepted and the
// user has to sign in again.
var ErrRefreshRejected = errors.New("refresh token rejected")

// Refresher exchanges a refresh token for a new credential.
// A returned RefreshToken may be empty when the server keeps the old one.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
}

// OAuthRefresher refreshes directly against the Spotify token endpoint.
type OAuthRefresher struct {
	Config     *Config
	HTTPClient *http.Client
}

func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}
	src := r.Config.OAuth2().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %s", ErrRefreshRejected, re.ErrorCode)
		}
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	// The token source echoes the input refresh token when none is returned.
	if tok.RefreshToken == refreshToken {
		tok.RefreshToken = ""
	}
	return fromOAuth2(tok), nil
}

// ProxyRefresher refreshes through a site backend that holds the client secret.
type ProxyRefresher struct {
	URL        string
	HTTPClient *http.Client
	now        func() time.Time
}

// NewProxyRefresher returns a ProxyRefresher posting to url.
func NewProxyRefresher(url string, httpClient *http.Client) *ProxyRefresher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ProxyRefresher{URL: url, HTTPClient: httpClient, now: time.Now}
}

type proxyRefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type proxyRefreshResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

func (r *ProxyRefresher) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	body, err := json.Marshal(proxyRefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrRefreshRejected, resp.StatusCode)
	}

	var parsed proxyRefreshResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("%w: response carried no access token", ErrRefreshRejected)
	}

	now := time.Now
	if r.now != nil {
		now = r.now
	}
	return &Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresAt:    now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}, nil
}
