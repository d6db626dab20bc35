package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	rerrors "github.com/tessro/reprise/internal/errors"
	"github.com/tessro/reprise/internal/kv"
)

// Storage keys for the credential triple.
const (
	KeyAccessToken  = "visitor_spotify_access_token"
	KeyRefreshToken = "visitor_spotify_refresh_token"
	KeyExpiresAt    = "visitor_spotify_token_expires_at"
)

// Store owns the persisted Spotify credential and keeps it fresh.
type Store struct {
	kv        kv.Store
	refresher Refresher
	linked    []string
	logger    *slog.Logger
	now       func() time.Time

	// mu serializes refreshes so concurrent callers share one exchange.
	mu sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLinkedKeys names additional keys removed whenever the credential is
// invalidated, such as the saved playback snapshot.
func WithLinkedKeys(keys ...string) StoreOption {
	return func(s *Store) { s.linked = append(s.linked, keys...) }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore returns a Store persisting into store and refreshing through r.
func NewStore(store kv.Store, r Refresher, opts ...StoreOption) *Store {
	s := &Store{
		kv:        store,
		refresher: r,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the stored credential, or nil when none is stored.
func (s *Store) Load(ctx context.Context) (*Token, error) {
	access, okA, err := s.kv.Get(ctx, KeyAccessToken)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	refresh, okR, err := s.kv.Get(ctx, KeyRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if !okA && !okR {
		return nil, nil
	}

	tok := &Token{AccessToken: access, RefreshToken: refresh}
	raw, ok, err := s.kv.Get(ctx, KeyExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if ok {
		// An unparsable expiry leaves the zero time, which forces a refresh.
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			tok.ExpiresAt = time.UnixMilli(ms)
		}
	}
	return tok, nil
}

// Save persists tok as a single atomic write.
func (s *Store) Save(ctx context.Context, tok *Token) error {
	if err := s.kv.SetAll(ctx, map[string]string{
		KeyAccessToken:  tok.AccessToken,
		KeyRefreshToken: tok.RefreshToken,
		KeyExpiresAt:    strconv.FormatInt(tok.ExpiresAt.UnixMilli(), 10),
	}); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// GetValidCredential returns a credential that stays valid for at least
// ExpiryBuffer, refreshing it first when needed. It fails with
// ErrAuthRequired once the user has to sign in again.
func (s *Store) GetValidCredential(ctx context.Context) (*Token, error) {
	return s.credential(ctx, false)
}

// ForceRefresh exchanges the refresh token regardless of the stored expiry.
// It is used when Spotify rejected an access token before it expired.
func (s *Store) ForceRefresh(ctx context.Context) (*Token, error) {
	return s.credential(ctx, true)
}

func (s *Store) credential(ctx context.Context, force bool) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, rerrors.ErrAuthRequired
	}
	if !force && !tok.ExpiredAt(s.now()) {
		return tok, nil
	}

	if tok.RefreshToken == "" {
		s.logger.Info("credential unusable without refresh token")
		_ = s.invalidate(ctx)
		return nil, rerrors.ErrAuthRequired
	}

	s.logger.Debug("refreshing spotify credential", "expires_at", tok.ExpiresAt, "forced", force)
	fresh, err := s.refresher.Refresh(ctx, tok.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshRejected) {
			s.logger.Warn("credential refresh rejected", "error", err)
			_ = s.invalidate(ctx)
			return nil, fmt.Errorf("%w: %v", rerrors.ErrAuthRequired, err)
		}
		s.logger.Warn("credential refresh failed", "error", err)
		return nil, fmt.Errorf("%w: %v", rerrors.ErrRemoteService, err)
	}

	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	if err := s.Save(ctx, fresh); err != nil {
		return nil, err
	}
	s.logger.Info("spotify credential refreshed", "expires_at", fresh.ExpiresAt)
	return fresh, nil
}

// Invalidate removes the credential and every linked key.
func (s *Store) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidate(ctx)
}

func (s *Store) invalidate(ctx context.Context) error {
	keys := append([]string{KeyAccessToken, KeyRefreshToken, KeyExpiresAt}, s.linked...)
	if err := s.kv.Remove(ctx, keys...); err != nil {
		s.logger.Error("failed to clear credential", "error", err)
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// AccessToken returns a currently valid access token, satisfying the Web API
// client's token source.
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	tok, err := s.GetValidCredential(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
