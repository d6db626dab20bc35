package client

import (
	"time"

	"github.com/tessro/reprise/internal/core"
)

// Core converts an API track into the domain model.
func (t *Track) Core() *core.Track {
	if t == nil {
		return nil
	}
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}
	return &core.Track{
		URI:         t.URI,
		Name:        t.Name,
		Artists:     artists,
		Album:       t.Album.Name,
		Duration:    time.Duration(t.DurationMS) * time.Millisecond,
		AlbumURI:    t.Album.URI,
		AlbumTracks: t.Album.TotalTracks,
		TrackNumber: t.TrackNumber,
	}
}

// Core converts an API device into the domain model.
func (d *Device) Core() *core.Device {
	if d == nil || d.ID == "" {
		return nil
	}
	volume := 0
	if d.VolumePercent != nil {
		volume = *d.VolumePercent
	}
	return &core.Device{
		ID:       d.ID,
		Name:     d.Name,
		Type:     d.Type,
		IsActive: d.IsActive,
		Volume:   volume,
	}
}

// Core converts an API playback state into the domain model. Episodes and
// ads carry no track.
func (s *PlaybackState) Core() *core.PlaybackState {
	if s == nil {
		return nil
	}
	state := &core.PlaybackState{
		Device:    s.Device.Core(),
		IsPlaying: s.IsPlaying,
		Progress:  time.Duration(s.ProgressMS) * time.Millisecond,
	}
	if s.Item != nil && (s.CurrentlyPlayingType == "" || s.CurrentlyPlayingType == "track") {
		state.Track = s.Item.Core()
	}
	if s.Context != nil {
		state.Context = core.ParseContext(s.Context.URI)
	}
	return state
}
