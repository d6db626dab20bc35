package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tessro/reprise/internal/kv"
)

var errCorrupt = errors.New("corrupt snapshot")

// Gate reports whether a restoration currently owns playback state.
type Gate interface {
	Restoring() bool
}

// Store reads and writes the snapshot under a single key.
type Store struct {
	kv     kv.Store
	key    string
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
	gate   atomic.Pointer[gateBox]
}

type gateBox struct{ g Gate }

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithStaleness sets how old a snapshot may be before it is discarded.
func WithStaleness(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns a Store over store.
func NewStore(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:     store,
		key:    Key,
		window: DefaultStaleness,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetGate installs the gate consulted by Save.
func (s *Store) SetGate(g Gate) {
	s.gate.Store(&gateBox{g: g})
}

// Key returns the storage key.
func (s *Store) Key() string { return s.key }

// Staleness returns the replay window.
func (s *Store) Staleness() time.Duration { return s.window }

func (s *Store) restoring() bool {
	b := s.gate.Load()
	return b != nil && b.g != nil && b.g.Restoring()
}

// Save stamps snap with the current time and overwrites the stored snapshot.
// Snapshots without a track, and saves during a restoration, are dropped.
func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	if !snap.HasTrack() {
		return nil
	}
	if s.restoring() {
		s.logger.Debug("skipping snapshot save during restoration")
		return nil
	}

	cp := *snap
	cp.Timestamp = s.now().UnixMilli()
	if cp.Track.DurationMs < 0 {
		t := *cp.Track
		t.DurationMs = 0
		cp.Track = &t
	}
	cp.Duration = cp.Track.DurationMs
	cp.Position = min(max(cp.Position, 0), cp.Duration)

	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.logger.Debug("snapshot saved", "track", cp.Track.URI, "position_ms", cp.Position, "playing", cp.IsPlaying)
	return nil
}

// Load returns the stored snapshot, or nil when there is none. Stale or
// undecodable snapshots are deleted and reported as absent.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	snap, err := s.Peek(ctx)
	if errors.Is(err, errCorrupt) {
		s.logger.Warn("discarding unreadable snapshot", "error", err)
		return nil, s.Clear(ctx)
	}
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}
	if !snap.HasTrack() {
		s.logger.Info("discarding snapshot without track")
		return nil, s.Clear(ctx)
	}
	if now := s.now(); snap.IsStale(now, s.window) {
		s.logger.Info("discarding stale snapshot", "age", snap.Age(now).Round(time.Second))
		return nil, s.Clear(ctx)
	}
	return snap, nil
}

// Peek decodes the stored snapshot without staleness checks or deletion.
func (s *Store) Peek(ctx context.Context) (*Snapshot, error) {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	return &snap, nil
}

// Clear deletes the stored snapshot.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
