package server

import (
	"github.com/tessro/reprise/internal/session"
)

// TrackView is the JSON form of a track.
type TrackView struct {
	URI        string   `json:"uri"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	DurationMS int64    `json:"duration_ms"`
}

// ContextView is the JSON form of a playback context.
type ContextView struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

// StateView is the JSON form of the session state served on /api/state
// and the state stream. Times are in milliseconds.
type StateView struct {
	SessionID   string       `json:"session_id"`
	Track       *TrackView   `json:"track"`
	IsPlaying   bool         `json:"is_playing"`
	PositionMS  int64        `json:"position_ms"`
	DurationMS  int64        `json:"duration_ms"`
	Context     *ContextView `json:"context"`
	DeviceReady bool         `json:"device_ready"`
	DeviceID    string       `json:"device_id,omitempty"`
	Restoring   bool         `json:"restoring"`
}

// NewStateView converts st to its JSON form.
func NewStateView(st session.State) StateView {
	resp := StateView{
		SessionID:   st.SessionID,
		IsPlaying:   st.IsPlaying,
		PositionMS:  st.Position.Milliseconds(),
		DurationMS:  st.Duration.Milliseconds(),
		DeviceReady: st.DeviceReady,
		DeviceID:    st.DeviceID,
		Restoring:   st.Restoring,
	}
	if t := st.Track; t != nil {
		resp.Track = &TrackView{
			URI:        t.URI,
			Name:       t.Name,
			Artists:    t.Artists,
			Album:      t.Album,
			DurationMS: t.Duration.Milliseconds(),
		}
	}
	if c := st.Context; c != nil {
		resp.Context = &ContextView{Type: string(c.Kind), URI: c.URI}
	}
	return resp
}
