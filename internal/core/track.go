package core

import (
	"strings"
	"time"
)

// Track represents a playable audio track.
type Track struct {
	URI      string        `json:"uri"`
	Name     string        `json:"name"`
	Artists  []string      `json:"artists"`
	Album    string        `json:"album"`
	Duration time.Duration `json:"duration"`

	// Album placement, when known. PlayTrack uses it to start the album
	// context at this track.
	AlbumURI    string `json:"album_uri,omitempty"`
	AlbumTracks int    `json:"album_tracks,omitempty"`
	TrackNumber int    `json:"track_number,omitempty"`
}

// ArtistLine returns the artists joined for display.
func (t *Track) ArtistLine() string {
	if t == nil {
		return ""
	}
	return strings.Join(t.Artists, ", ")
}

// ID returns the Spotify id portion of the track URI.
func (t *Track) ID() string {
	if t == nil {
		return ""
	}
	return URIID(t.URI)
}
