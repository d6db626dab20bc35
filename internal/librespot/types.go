package librespot

import "encoding/json"

// Status is the daemon's GET /status response.
type Status struct {
	DeviceID   string       `json:"device_id"`
	DeviceName string       `json:"device_name"`
	Username   string       `json:"username"`
	Stopped    bool         `json:"stopped"`
	Paused     bool         `json:"paused"`
	Buffering  bool         `json:"buffering"`
	Volume     int          `json:"volume"`
	Track      *StatusTrack `json:"track"`
}

// StatusTrack is the track block of a status response.
type StatusTrack struct {
	URI         string   `json:"uri"`
	Name        string   `json:"name"`
	ArtistNames []string `json:"artist_names"`
	AlbumName   string   `json:"album_name"`
	Position    int      `json:"position"` // ms
	Duration    int      `json:"duration"` // ms
	TrackNumber int      `json:"track_number"`
}

// wireEvent is a message on the /events stream.
type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type eventMetadata struct {
	ContextURI  string   `json:"context_uri"`
	URI         string   `json:"uri"`
	Name        string   `json:"name"`
	ArtistNames []string `json:"artist_names"`
	AlbumName   string   `json:"album_name"`
	Duration    int      `json:"duration"` // ms
	Position    int      `json:"position"` // ms
	TrackNumber int      `json:"track_number"`
}

type eventSeek struct {
	Position int `json:"position"` // ms
	Duration int `json:"duration"` // ms
}

type eventPlayback struct {
	ContextURI string `json:"context_uri"`
}
