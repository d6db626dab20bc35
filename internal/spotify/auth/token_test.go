package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestToken_ExpiredAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		token Token
		want  bool
	}{
		{"expired", Token{AccessToken: "a", ExpiresAt: now.Add(-time.Hour)}, true},
		{"expires within buffer", Token{AccessToken: "a", ExpiresAt: now.Add(30 * time.Second)}, true},
		{"exactly at buffer", Token{AccessToken: "a", ExpiresAt: now.Add(ExpiryBuffer)}, false},
		{"valid", Token{AccessToken: "a", ExpiresAt: now.Add(time.Hour)}, false},
		{"no access token", Token{ExpiresAt: now.Add(time.Hour)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.ExpiredAt(now); got != tt.want {
				t.Errorf("ExpiredAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("Failed to parse form: %v", err)
		}
		checks := map[string]string{
			"grant_type":    "authorization_code",
			"code":          "test_code",
			"client_id":     "test_client",
			"code_verifier": "test_verifier",
		}
		for k, want := range checks {
			if got := r.FormValue(k); got != want {
				t.Errorf("form %s = %q, want %q", k, got, want)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access_token_123",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "refresh_token_456",
		})
	}))
	defer server.Close()

	cfg := &Config{ClientID: "test_client", RedirectURI: DefaultRedirectURI, TokenURL: server.URL}
	tok, err := ExchangeCode(context.Background(), cfg, server.Client(), "test_code", "test_verifier")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if tok.AccessToken != "access_token_123" || tok.RefreshToken != "refresh_token_456" {
		t.Errorf("ExchangeCode() token = %+v", tok)
	}
	if until := time.Until(tok.ExpiresAt); until < 59*time.Minute || until > time.Hour {
		t.Errorf("ExpiresAt %v not about an hour away", tok.ExpiresAt)
	}
}

func TestExchangeCodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Authorization code expired",
		})
	}))
	defer server.Close()

	cfg := &Config{ClientID: "c", TokenURL: server.URL}
	if _, err := ExchangeCode(context.Background(), cfg, server.Client(), "code", "verifier"); err == nil {
		t.Error("ExchangeCode() expected error for invalid_grant")
	}
}

func TestExchangeCodeContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &Config{ClientID: "c", TokenURL: "http://127.0.0.1:1/token"}
	if _, err := ExchangeCode(ctx, cfg, nil, "code", "verifier"); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
