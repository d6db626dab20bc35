// Package snapshot persists the last known playback state so it can be
// resumed on the next start.
package snapshot

import (
	"time"

	"github.com/tessro/reprise/internal/core"
)

// Key is the storage key holding the serialized snapshot.
const Key = "spotify_playback_state"

// DefaultStaleness is how long a snapshot stays eligible for replay.
const DefaultStaleness = 30 * time.Minute

// Track is the persisted track metadata.
type Track struct {
	URI        string   `json:"uri"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	DurationMs int64    `json:"duration_ms"`
}

// Context is the persisted playback context.
type Context struct {
	Kind core.ContextKind `json:"type"`
	URI  string           `json:"uri"`
}

// Snapshot is the persisted record of what was playing. Times are
// milliseconds; Timestamp is Unix milliseconds at save time.
type Snapshot struct {
	Track     *Track   `json:"currentTrack"`
	IsPlaying bool     `json:"isPlaying"`
	Position  int64    `json:"position"`
	Duration  int64    `json:"duration"`
	Context   *Context `json:"currentContext,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// FromState builds a snapshot of st. It returns nil when no track is loaded.
func FromState(st *core.PlaybackState) *Snapshot {
	if !st.HasTrack() {
		return nil
	}
	t := st.Track
	snap := &Snapshot{
		Track: &Track{
			URI:        t.URI,
			Name:       t.Name,
			Artists:    append([]string(nil), t.Artists...),
			Album:      t.Album,
			DurationMs: max(t.Duration.Milliseconds(), 0),
		},
		IsPlaying: st.IsPlaying,
		Position:  st.ClampedProgress().Milliseconds(),
		Duration:  max(t.Duration.Milliseconds(), 0),
	}
	if st.Context != nil && st.Context.URI != "" {
		snap.Context = &Context{Kind: st.Context.Kind, URI: st.Context.URI}
	}
	return snap
}

// HasTrack reports whether the snapshot carries a replayable track.
func (s *Snapshot) HasTrack() bool {
	return s != nil && s.Track != nil && s.Track.URI != ""
}

// TrackDuration is the track length from its metadata.
func (s *Snapshot) TrackDuration() time.Duration {
	if !s.HasTrack() {
		return 0
	}
	return time.Duration(s.Track.DurationMs) * time.Millisecond
}

// SavedAt returns the save time.
func (s *Snapshot) SavedAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Age returns how long ago the snapshot was saved.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.SavedAt())
}

// IsStale reports whether the snapshot is older than window.
func (s *Snapshot) IsStale(now time.Time, window time.Duration) bool {
	return s.Age(now) > window
}

// ResumePosition is the position the listener would have reached at now:
// the saved position, advanced by the elapsed time when playing, clamped
// to the track duration.
func (s *Snapshot) ResumePosition(now time.Time) time.Duration {
	pos := time.Duration(s.Position) * time.Millisecond
	if s.IsPlaying {
		if elapsed := s.Age(now); elapsed > 0 {
			pos += elapsed
		}
	}
	return core.ClampPosition(pos, s.TrackDuration())
}

// PlayContext returns the saved context, or nil.
func (s *Snapshot) PlayContext() *core.PlayContext {
	if s.Context == nil || s.Context.URI == "" {
		return nil
	}
	kind := s.Context.Kind
	switch kind {
	case core.ContextAlbum, core.ContextPlaylist, core.ContextArtist:
	default:
		// Some records carry a free-form description; the URI decides.
		kind = core.KindOf(s.Context.URI)
	}
	return &core.PlayContext{Kind: kind, URI: s.Context.URI}
}

// State converts the snapshot back into a playback state positioned at pos.
func (s *Snapshot) State(pos time.Duration) *core.PlaybackState {
	if !s.HasTrack() {
		return nil
	}
	return &core.PlaybackState{
		Track: &core.Track{
			URI:      s.Track.URI,
			Name:     s.Track.Name,
			Artists:  append([]string(nil), s.Track.Artists...),
			Album:    s.Track.Album,
			Duration: s.TrackDuration(),
		},
		Context:   s.PlayContext(),
		IsPlaying: s.IsPlaying,
		Progress:  pos,
	}
}
