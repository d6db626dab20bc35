package core

import (
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		uri  string
		want ContextKind
	}{
		{"spotify:album:1DFixLWuPkv3KT3TnV35m3", ContextAlbum},
		{"spotify:playlist:37i9dQZF1DXcBWIGoYBM5M", ContextPlaylist},
		{"spotify:user:someone:playlist:37i9dQZF1DXcBWIGoYBM5M", ContextPlaylist},
		{"spotify:artist:0OdUWJ0sBjDrqHygGUXeCF", ContextArtist},
		{"spotify:show:abc", ContextUnknown},
		{"https://open.spotify.com/album/abc", ContextUnknown},
		{"", ContextUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			if got := KindOf(tt.uri); got != tt.want {
				t.Errorf("KindOf(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestParseContext(t *testing.T) {
	if ParseContext("") != nil {
		t.Error("ParseContext(\"\") should be nil")
	}
	c := ParseContext("spotify:album:abc")
	if c == nil || c.Kind != ContextAlbum || c.URI != "spotify:album:abc" {
		t.Errorf("ParseContext() = %+v", c)
	}
}

func TestURIID(t *testing.T) {
	if got := URIID("spotify:track:6rqhFgbbKwnb9MLmUQDhG6"); got != "6rqhFgbbKwnb9MLmUQDhG6" {
		t.Errorf("URIID() = %q", got)
	}
	if got := URIID("plain"); got != "plain" {
		t.Errorf("URIID() = %q, want plain", got)
	}
}

func TestClampPosition(t *testing.T) {
	d := 3 * time.Minute
	tests := []struct {
		name string
		pos  time.Duration
		want time.Duration
	}{
		{"negative", -time.Second, 0},
		{"inside", time.Minute, time.Minute},
		{"at end", d, d},
		{"past end", d + time.Second, d},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampPosition(tt.pos, d); got != tt.want {
				t.Errorf("ClampPosition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlaybackStateProgress(t *testing.T) {
	var nilState *PlaybackState
	if nilState.HasTrack() {
		t.Error("nil state should have no track")
	}

	s := &PlaybackState{
		Track:    &Track{URI: "spotify:track:x", Duration: 200 * time.Second},
		Progress: 250 * time.Second,
	}
	if got := s.ClampedProgress(); got != 200*time.Second {
		t.Errorf("ClampedProgress() = %v, want 200s", got)
	}
	if got := s.ProgressPercent(); got != 100 {
		t.Errorf("ProgressPercent() = %v, want 100", got)
	}
}
