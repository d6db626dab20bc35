package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/tessro/reprise/internal/errors"
	"github.com/tessro/reprise/internal/server"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{-5 * time.Second, "0:00"},
		{65 * time.Second, "1:05"},
		{3*time.Minute + 999*time.Millisecond, "3:00"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in), "FormatDuration(%v)", tt.in)
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "a long ...", TruncateString("a long title here", 10))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
	assert.Equal(t, "Bjö...", TruncateString("Björk Guðmundsdóttir", 6))
}

func TestFormatProgress(t *testing.T) {
	assert.Equal(t, "━━━━━─────", FormatProgress(50*time.Second, 100*time.Second, 10))
	assert.Equal(t, "──────────", FormatProgress(0, 0, 10))
	assert.Equal(t, "━━━━━━━━━━", FormatProgress(200*time.Second, 100*time.Second, 10))
	assert.Equal(t, "", FormatProgress(1, 2, 0))
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"90", 90 * time.Second, false},
		{"2:15", 135 * time.Second, false},
		{"1:00:05", time.Hour + 5*time.Second, false},
		{"", 0, true},
		{"-3", 0, true},
		{"1:2:3:4", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePosition(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDaemonClient(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/state":
			_ = json.NewEncoder(w).Encode(server.StateView{SessionID: "abc", DeviceReady: true})
		case "/api/player/seek":
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			_ = json.NewEncoder(w).Encode(server.StateView{SessionID: "abc", PositionMS: 42000})
		case "/api/player/previous":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"action not permitted for this account","suggestion":"No previous track available"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := newDaemonClient(strings.TrimPrefix(ts.URL, "http://"))
	ctx := context.Background()

	st, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", st.SessionID)
	assert.True(t, st.DeviceReady)

	st, err = c.Command(ctx, "seek", map[string]int64{"position_ms": 42000})
	require.NoError(t, err)
	assert.EqualValues(t, 42000, st.PositionMS)
	assert.EqualValues(t, 42000, gotBody["position_ms"])

	_, err = c.Command(ctx, "previous", nil)
	require.Error(t, err)
	assert.Equal(t, "No previous track available", rerrors.GetSuggestion(err))
}

func TestDaemonClientUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	_, err := newDaemonClient(addr).State(context.Background())
	require.Error(t, err)
	assert.Contains(t, rerrors.GetSuggestion(err), "reprise serve")
}

func TestRenderStatus(t *testing.T) {
	st := &server.StateView{
		DeviceReady: true,
		IsPlaying:   true,
		PositionMS:  90000,
		DurationMS:  200000,
		Track: &server.TrackView{
			URI:        "spotify:track:1",
			Name:       "Song",
			Artists:    []string{"A", "B"},
			Album:      "Record",
			DurationMS: 200000,
		},
		Context: &server.ContextView{Type: "album", URI: "spotify:album:9"},
	}

	out := renderStatus(st, 60)
	assert.Contains(t, out, "Device ready")
	assert.Contains(t, out, "Song")
	assert.Contains(t, out, "A, B")
	assert.Contains(t, out, "1:30")
	assert.Contains(t, out, "3:20")
	assert.Contains(t, out, "spotify:album:9")

	empty := renderStatus(&server.StateView{}, 60)
	assert.Contains(t, empty, "Device not ready")
	assert.Contains(t, empty, "No active playback")
}
