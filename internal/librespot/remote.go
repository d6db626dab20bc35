// Package librespot drives a go-librespot daemon as the playback device,
// using its REST API for commands and its WebSocket stream for events.
package librespot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tessro/reprise/internal/core"
	"github.com/tessro/reprise/internal/device"
)

// Remote is a device.Remote backed by a go-librespot daemon.
type Remote struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer
	logger  *slog.Logger

	mu    sync.Mutex
	conn  *websocket.Conn
	state core.PlaybackState
}

// New returns a Remote for the daemon at baseURL (for example http://127.0.0.1:3678).
func New(baseURL string, logger *slog.Logger) *Remote {
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
		dialer:  websocket.DefaultDialer,
		logger:  logger,
	}
}

// Status fetches the current playback status from GET /status.
func (r *Remote) Status(ctx context.Context) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return &Status{Stopped: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var s Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding status: %w", err)
	}
	return &s, nil
}

// Connect reads the daemon status, dials the event stream and announces the
// device as ready.
func (r *Remote) Connect(ctx context.Context) (<-chan device.Event, error) {
	status, err := r.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("librespot status: %w", err)
	}
	if status.DeviceID == "" {
		return nil, fmt.Errorf("librespot status carried no device id")
	}

	conn, _, err := r.dialer.DialContext(ctx, r.eventsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to events WebSocket: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.state = stateFromStatus(status)
	initial := r.snapshotLocked()
	r.mu.Unlock()

	out := make(chan device.Event, 32)
	out <- device.Event{Kind: device.EventReady, DeviceID: status.DeviceID}
	if initial != nil {
		out <- device.Event{Kind: device.EventStateChanged, State: initial}
	}

	go r.read(conn, out)
	return out, nil
}

func (r *Remote) eventsURL() string {
	u := r.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/events"
}

func (r *Remote) read(conn *websocket.Conn, out chan<- device.Event) {
	defer close(out)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			r.logger.Debug("librespot event stream closed", "error", err)
			return
		}
		var ev wireEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			r.logger.Debug("skipping malformed librespot event", "error", err)
			continue
		}
		if mapped, ok := r.translate(ev); ok {
			out <- mapped
		}
	}
}

// translate folds a daemon event into the accumulated playback state.
func (r *Remote) translate(ev wireEvent) (device.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case "metadata":
		var m eventMetadata
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			return device.Event{}, false
		}
		r.state.Track = &core.Track{
			URI:         m.URI,
			Name:        m.Name,
			Artists:     m.ArtistNames,
			Album:       m.AlbumName,
			Duration:    time.Duration(m.Duration) * time.Millisecond,
			TrackNumber: m.TrackNumber,
		}
		r.state.Progress = time.Duration(m.Position) * time.Millisecond
		if m.ContextURI != "" {
			r.state.Context = core.ParseContext(m.ContextURI)
		}
	case "playing", "paused":
		var p eventPlayback
		if len(ev.Data) > 0 {
			_ = json.Unmarshal(ev.Data, &p)
		}
		r.state.IsPlaying = ev.Type == "playing"
		if p.ContextURI != "" {
			r.state.Context = core.ParseContext(p.ContextURI)
		}
	case "not_playing":
		r.state.IsPlaying = false
	case "stopped":
		r.state = core.PlaybackState{}
	case "seek":
		var s eventSeek
		if err := json.Unmarshal(ev.Data, &s); err != nil {
			return device.Event{}, false
		}
		r.state.Progress = time.Duration(s.Position) * time.Millisecond
	default:
		return device.Event{}, false
	}
	return device.Event{Kind: device.EventStateChanged, State: r.snapshotLocked()}, true
}

// snapshotLocked copies the accumulated state; nil when nothing is loaded.
func (r *Remote) snapshotLocked() *core.PlaybackState {
	if !r.state.HasTrack() {
		return nil
	}
	cp := r.state
	track := *r.state.Track
	cp.Track = &track
	if r.state.Context != nil {
		c := *r.state.Context
		cp.Context = &c
	}
	return &cp
}

func stateFromStatus(s *Status) core.PlaybackState {
	if s.Stopped || s.Track == nil {
		return core.PlaybackState{}
	}
	return core.PlaybackState{
		Track: &core.Track{
			URI:         s.Track.URI,
			Name:        s.Track.Name,
			Artists:     s.Track.ArtistNames,
			Album:       s.Track.AlbumName,
			Duration:    time.Duration(s.Track.Duration) * time.Millisecond,
			TrackNumber: s.Track.TrackNumber,
		},
		IsPlaying: !s.Paused,
		Progress:  time.Duration(s.Track.Position) * time.Millisecond,
	}
}

// Close closes the event stream.
func (r *Remote) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Pause pauses playback via POST /player/pause.
func (r *Remote) Pause(ctx context.Context) error {
	return r.post(ctx, "/player/pause", nil)
}

// Resume resumes playback via POST /player/resume.
func (r *Remote) Resume(ctx context.Context) error {
	return r.post(ctx, "/player/resume", nil)
}

// Seek seeks to an absolute position via POST /player/seek.
func (r *Remote) Seek(ctx context.Context, position time.Duration) error {
	return r.post(ctx, "/player/seek", map[string]any{
		"position": position.Milliseconds(),
		"relative": false,
	})
}

func (r *Remote) post(ctx context.Context, path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("POST %s returned %d: %s", path, resp.StatusCode, b)
	}
	return nil
}
