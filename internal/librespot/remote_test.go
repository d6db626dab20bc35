package librespot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/reprise/internal/core"
	"github.com/tessro/reprise/internal/device"
	"github.com/tessro/reprise/internal/logging"
)

type fakeDaemon struct {
	t        *testing.T
	status   Status
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conn  *websocket.Conn
	ready chan struct{}
	posts []string
	seek  map[string]any
}

func newFakeDaemon(t *testing.T, status Status) (*fakeDaemon, *httptest.Server) {
	d := &fakeDaemon{t: t, status: status, ready: make(chan struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(d.status)
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		conn, err := d.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		d.mu.Lock()
		d.conn = conn
		d.mu.Unlock()
		close(d.ready)
	})
	mux.HandleFunc("/player/", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.posts = append(d.posts, r.URL.Path)
		if r.URL.Path == "/player/seek" {
			json.NewDecoder(r.Body).Decode(&d.seek)
		}
		d.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return d, server
}

func (d *fakeDaemon) send(typ string, data any) {
	<-d.ready
	d.mu.Lock()
	defer d.mu.Unlock()
	raw, _ := json.Marshal(data)
	msg, _ := json.Marshal(map[string]any{"type": typ, "data": json.RawMessage(raw)})
	if err := d.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		d.t.Errorf("write: %v", err)
	}
}

func (d *fakeDaemon) hangUp() {
	<-d.ready
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conn.Close()
}

func recv(t *testing.T, ch <-chan device.Event) device.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return device.Event{}
	}
}

func TestConnectAnnouncesReadyAndInitialState(t *testing.T) {
	_, server := newFakeDaemon(t, Status{
		DeviceID: "dev-1",
		Paused:   true,
		Track: &StatusTrack{
			URI: "spotify:track:t", Name: "Song", ArtistNames: []string{"A"},
			Position: 5000, Duration: 180000,
		},
	})
	r := New(server.URL, logging.Discard())
	t.Cleanup(func() { r.Close() })

	events, err := r.Connect(context.Background())
	require.NoError(t, err)

	ev := recv(t, events)
	assert.Equal(t, device.EventReady, ev.Kind)
	assert.Equal(t, "dev-1", ev.DeviceID)

	ev = recv(t, events)
	require.Equal(t, device.EventStateChanged, ev.Kind)
	assert.Equal(t, "spotify:track:t", ev.State.Track.URI)
	assert.False(t, ev.State.IsPlaying)
	assert.Equal(t, 5*time.Second, ev.State.Progress)
	assert.Equal(t, 3*time.Minute, ev.State.Track.Duration)
}

func TestEventsFoldIntoState(t *testing.T) {
	d, server := newFakeDaemon(t, Status{DeviceID: "dev-1", Stopped: true})
	r := New(server.URL, logging.Discard())
	t.Cleanup(func() { r.Close() })

	events, err := r.Connect(context.Background())
	require.NoError(t, err)
	recv(t, events) // ready

	d.send("metadata", map[string]any{
		"context_uri": "spotify:album:alb", "uri": "spotify:track:t", "name": "Song",
		"artist_names": []string{"A"}, "album_name": "Rec", "duration": 200000, "position": 0,
	})
	ev := recv(t, events)
	require.NotNil(t, ev.State)
	assert.Equal(t, core.ContextAlbum, ev.State.Context.Kind)

	d.send("playing", map[string]any{"context_uri": "spotify:album:alb"})
	ev = recv(t, events)
	assert.True(t, ev.State.IsPlaying)

	d.send("seek", map[string]any{"position": 42000, "duration": 200000})
	ev = recv(t, events)
	assert.Equal(t, 42*time.Second, ev.State.Progress)
	assert.True(t, ev.State.IsPlaying)

	d.send("volume", map[string]any{"value": 10, "max": 100})
	d.send("stopped", map[string]any{})
	ev = recv(t, events)
	assert.Equal(t, device.EventStateChanged, ev.Kind)
	assert.Nil(t, ev.State, "stopped clears the loaded track")

	d.hangUp()
	select {
	case _, ok := <-events:
		assert.False(t, ok, "stream closes when the daemon hangs up")
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed")
	}
}

func TestCommands(t *testing.T) {
	d, server := newFakeDaemon(t, Status{DeviceID: "dev-1"})
	r := New(server.URL, logging.Discard())
	ctx := context.Background()

	require.NoError(t, r.Pause(ctx))
	require.NoError(t, r.Resume(ctx))
	require.NoError(t, r.Seek(ctx, 90*time.Second))

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, []string{"/player/pause", "/player/resume", "/player/seek"}, d.posts)
	assert.EqualValues(t, 90000, d.seek["position"])
	assert.Equal(t, false, d.seek["relative"])
}

func TestConnectWithoutDaemon(t *testing.T) {
	r := New("http://127.0.0.1:1", logging.Discard())
	_, err := r.Connect(context.Background())
	assert.Error(t, err)
}

func TestEventsURL(t *testing.T) {
	assert.Equal(t, "ws://127.0.0.1:3678/events", New("http://127.0.0.1:3678/", nil).eventsURL())
	assert.Equal(t, "wss://host/events", New("https://host", nil).eventsURL())
}
