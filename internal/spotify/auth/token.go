package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// ExpiryBuffer is how long before its real expiry a token is treated as expired.
const ExpiryBuffer = 60 * time.Second

// Token is the Spotify credential triple.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsExpired returns true if the token has expired or will expire within the buffer.
func (t *Token) IsExpired() bool {
	return t.ExpiredAt(time.Now())
}

// ExpiredAt reports whether the token is unusable at now.
func (t *Token) ExpiredAt(now time.Time) bool {
	return t.AccessToken == "" || now.Add(ExpiryBuffer).After(t.ExpiresAt)
}

func fromOAuth2(t *oauth2.Token) *Token {
	return &Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.Expiry,
	}
}

// ExchangeCode exchanges an authorization code for tokens.
func ExchangeCode(ctx context.Context, cfg *Config, httpClient *http.Client, code, codeVerifier string) (*Token, error) {
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	tok, err := cfg.OAuth2().Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	return fromOAuth2(tok), nil
}
