package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/reprise/internal/core"
	"github.com/tessro/reprise/internal/device"
	"github.com/tessro/reprise/internal/device/devicetest"
	rerrors "github.com/tessro/reprise/internal/errors"
	"github.com/tessro/reprise/internal/kv"
	"github.com/tessro/reprise/internal/logging"
	"github.com/tessro/reprise/internal/notify"
	"github.com/tessro/reprise/internal/restore"
	"github.com/tessro/reprise/internal/snapshot"
	"github.com/tessro/reprise/internal/spotify/auth"
	"github.com/tessro/reprise/internal/spotify/client"
)

const devID = "dev-1"

type fakeAPI struct {
	mu          sync.Mutex
	calls       []string
	plays       []client.PlayOptions
	nextErrs    []error
	prevErrs    []error
	playErr     error
	transferErr error
	track       *client.Track
	trackErr    error
	playback    *client.PlaybackState
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) Plays() []client.PlayOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.PlayOptions(nil), f.plays...)
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeAPI) TransferPlayback(_ context.Context, id string, play bool) error {
	f.record(fmt.Sprintf("transfer %s play=%t", id, play))
	return f.transferErr
}

func (f *fakeAPI) Play(_ context.Context, _ string, opts *client.PlayOptions) error {
	f.record("play")
	f.mu.Lock()
	f.plays = append(f.plays, *opts)
	f.mu.Unlock()
	return f.playErr
}

func (f *fakeAPI) GetAlbumTracks(context.Context, string) ([]client.SimpleTrack, error) {
	f.record("album tracks")
	return nil, rerrors.ErrRemoteService
}

func (f *fakeAPI) Next(context.Context, string) error {
	f.record("next")
	f.mu.Lock()
	defer f.mu.Unlock()
	return pop(&f.nextErrs)
}

func (f *fakeAPI) Previous(context.Context, string) error {
	f.record("previous")
	f.mu.Lock()
	defer f.mu.Unlock()
	return pop(&f.prevErrs)
}

func (f *fakeAPI) AddToQueue(_ context.Context, uri, _ string) error {
	f.record("queue " + uri)
	return nil
}

func (f *fakeAPI) GetPlaybackState(context.Context) (*client.PlaybackState, error) {
	f.record("state")
	return f.playback, nil
}

func (f *fakeAPI) GetTrack(context.Context, string) (*client.Track, error) {
	f.record("track")
	return f.track, f.trackErr
}

type recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recorder) Notify(_ context.Context, m notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Text
	}
	return out
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRefresher) Refresh(context.Context, string) (*auth.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &auth.Token{AccessToken: fmt.Sprintf("A%d", r.calls+1), ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (r *countingRefresher) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type harness struct {
	m         *Manager
	refresher *countingRefresher
	api    *fakeAPI
	remote *devicetest.Remote
	dev    *device.Session
	mem    *kv.Memory
	snaps  *snapshot.Store
	creds  *auth.Store
	engine *restore.Engine
	notes  *recorder
}

type harnessOpt func(*Options, *[]restore.Option)

// harnessSetup swaps components the options cannot reach.
type harnessSetup struct {
	store    kv.Store
	restorer Restorer
}

func newHarness(t *testing.T, hopts ...harnessOpt) *harness {
	t.Helper()
	return newHarnessWith(t, harnessSetup{}, hopts...)
}

func newHarnessWith(t *testing.T, setup harnessSetup, hopts ...harnessOpt) *harness {
	t.Helper()
	ctx := context.Background()
	logger := logging.Discard()

	h := &harness{
		api:       &fakeAPI{},
		refresher: &countingRefresher{},
		remote:    devicetest.New(),
		mem:       kv.NewMemory(),
		notes:     &recorder{},
	}
	store := setup.store
	if store == nil {
		store = h.mem
	}
	h.snaps = snapshot.NewStore(store, snapshot.WithLogger(logger))
	h.creds = auth.NewStore(store, h.refresher, auth.WithLinkedKeys(snapshot.Key), auth.WithLogger(logger))
	require.NoError(t, h.creds.Save(ctx, &auth.Token{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))
	h.dev = device.NewSession(h.remote, logger)

	opts := Options{
		SaveDebounce: 10 * time.Millisecond,
		RetryDelay:   time.Millisecond,
		SyncDelay:    time.Hour,
		Logger:       logger,
		Notifier:     h.notes,
		Sleep:        func(context.Context, time.Duration) error { return nil },
	}
	engineOpts := []restore.Option{
		restore.WithDelays(restore.Delays{}),
		restore.WithNotifier(h.notes),
		restore.WithLogger(logger),
	}
	for _, o := range hopts {
		o(&opts, &engineOpts)
	}

	h.engine = restore.New(h.api, h.creds, h.snaps, h.dev, engineOpts...)
	var restorer Restorer = h.engine
	if setup.restorer != nil {
		restorer = setup.restorer
	}
	h.m = New(h.dev, h.api, h.creds, h.snaps, restorer, opts)
	t.Cleanup(func() { _ = h.m.Close(context.Background()) })
	return h
}

// start runs the manager and brings the device to ready, waiting for the
// initial restoration to finish.
func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.m.Start(context.Background()))
	h.remote.Ready(devID)
	require.Eventually(t, func() bool {
		s := h.engine.State()
		st := h.m.State()
		return st.DeviceReady && !st.Restoring && s != restore.Idle && s != restore.Restoring
	}, 2*time.Second, 5*time.Millisecond)
}

// drain blocks until every event emitted so far has been handled.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	marker := fmt.Sprintf("marker-%d", time.Now().UnixNano())
	h.remote.Emit(device.Event{Kind: device.EventError, Error: device.ErrorPlayback, Message: marker})
	require.Eventually(t, func() bool {
		for _, txt := range h.notes.Texts() {
			if txt == "Playback error: "+marker {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func playing(uri string, d, pos time.Duration) device.Event {
	return device.Event{Kind: device.EventStateChanged, State: &core.PlaybackState{
		Track:     &core.Track{URI: uri, Name: "Song", Artists: []string{"Artist"}, Album: "Album", Duration: d},
		Context:   core.ParseContext("spotify:playlist:P1"),
		IsPlaying: true,
		Progress:  pos,
	}}
}

func seedSnapshot(t *testing.T, snaps *snapshot.Store, uri string, playing bool) {
	t.Helper()
	require.NoError(t, snaps.Save(context.Background(), &snapshot.Snapshot{
		Track:     &snapshot.Track{URI: uri, Name: "Saved", DurationMs: 240_000},
		IsPlaying: playing,
		Position:  30_000,
	}))
}

func TestReadyRestoresSnapshot(t *testing.T) {
	h := newHarness(t)
	seedSnapshot(t, h.snaps, "spotify:track:saved", true)

	h.start(t)

	assert.Equal(t, restore.Succeeded, h.engine.State())
	require.Eventually(t, func() bool {
		st := h.m.State()
		return st.Track != nil && st.Track.URI == "spotify:track:saved"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"transfer dev-1 play=false", "play"}, h.api.Calls())
	assert.Contains(t, h.notes.Texts(), restore.MsgRestored)

	got, err := h.snaps.Peek(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got, "snapshot is single-use")
}

func TestStateChangesIgnoredWhileRestoring(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h := newHarness(t, func(_ *Options, eo *[]restore.Option) {
		*eo = append(*eo, restore.WithSleep(func(ctx context.Context, _ time.Duration) error {
			first := false
			once.Do(func() { first = true; close(entered) })
			if first {
				<-release
			}
			return nil
		}))
	})
	seedSnapshot(t, h.snaps, "spotify:track:saved", false)

	require.NoError(t, h.m.Start(context.Background()))
	h.remote.Ready(devID)
	<-entered
	assert.True(t, h.m.State().Restoring)

	h.remote.Emit(playing("spotify:track:live", 3*time.Minute, time.Minute))
	h.drain(t)

	st := h.m.State()
	assert.Nil(t, st.Track, "live state must not leak into a restoring session")
	require.NoError(t, h.m.Save(context.Background()))
	saved, err := h.snaps.Peek(context.Background())
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "spotify:track:saved", saved.Track.URI)

	close(release)
	require.Eventually(t, func() bool {
		st := h.m.State()
		return !st.Restoring && st.Track != nil && st.Track.URI == "spotify:track:saved"
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, h.m.State().IsPlaying)
	assert.Equal(t, 1, h.remote.Count("pause"))
}

func TestDebouncedSave(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.remote.Emit(playing("spotify:track:one", 3*time.Minute, 10*time.Second))
	h.remote.Emit(playing("spotify:track:two", 3*time.Minute, 20*time.Second))

	require.Eventually(t, func() bool {
		snap, err := h.snaps.Peek(context.Background())
		return err == nil && snap != nil && snap.Track.URI == "spotify:track:two"
	}, 2*time.Second, 5*time.Millisecond)

	snap, err := h.snaps.Peek(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.IsPlaying)
	require.NotNil(t, snap.Context)
	assert.Equal(t, core.ContextPlaylist, snap.Context.Kind)
}

func TestPeriodicFlush(t *testing.T) {
	h := newHarness(t, func(o *Options, _ *[]restore.Option) {
		o.SaveDebounce = time.Hour
		o.FlushInterval = 50 * time.Millisecond
	})
	h.start(t)

	h.remote.Emit(playing("spotify:track:flushed", 3*time.Minute, 0))

	require.Eventually(t, func() bool {
		snap, err := h.snaps.Peek(context.Background())
		return err == nil && snap != nil && snap.Track.URI == "spotify:track:flushed"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestNotReadyClearsFlag(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.remote.Drop()
	require.Eventually(t, func() bool { return !h.m.State().DeviceReady }, 2*time.Second, 5*time.Millisecond)

	err := h.m.Next(context.Background())
	assert.ErrorIs(t, err, rerrors.ErrDeviceNotReady)
}

func TestCloseSavesAndKeepsCredential(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.remote.Emit(playing("spotify:track:last", 3*time.Minute, time.Minute))
	h.drain(t)

	require.NoError(t, h.m.Close(context.Background()))

	snap, err := h.snaps.Peek(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "spotify:track:last", snap.Track.URI)

	tok, err := h.creds.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tok)
	assert.Equal(t, device.Disconnected, h.dev.State())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.remote.Emit(playing("spotify:track:x", 3*time.Minute, time.Minute))
	h.drain(t)
	require.NoError(t, h.m.Save(context.Background()))

	ctx := context.Background()
	require.NoError(t, h.m.Disconnect(ctx))
	first := h.m.State()
	require.NoError(t, h.m.Disconnect(ctx))
	second := h.m.State()

	assert.Equal(t, first, second)
	assert.False(t, second.DeviceReady)
	assert.Nil(t, second.Track)
	assert.Equal(t, h.m.ID(), second.SessionID)
	assert.Zero(t, h.mem.Len(), "credential and snapshot removed")
	assert.Equal(t, device.Disconnected, h.dev.State())
}

func TestNextTransfersAndRetriesOnce(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.api.nextErrs = []error{rerrors.ErrDeviceInactive, nil}
	before := len(h.api.Calls())

	require.NoError(t, h.m.Next(context.Background()))
	assert.Equal(t, []string{"next", "transfer dev-1 play=false", "next"}, h.api.Calls()[before:])
}

func TestNextGivesUpAfterOneRetry(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.api.nextErrs = []error{rerrors.ErrDeviceInactive, rerrors.ErrDeviceInactive, rerrors.ErrDeviceInactive}
	before := len(h.api.Calls())

	err := h.m.Next(context.Background())
	assert.ErrorIs(t, err, rerrors.ErrDeviceInactive)
	assert.Equal(t, []string{"next", "transfer dev-1 play=false", "next"}, h.api.Calls()[before:])
	assert.Contains(t, h.notes.Texts(), "Cannot go to next track. Try playing an album or playlist.")
}

func TestPreviousForbiddenIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.api.prevErrs = []error{rerrors.ErrPermissionDenied}
	before := len(h.api.Calls())

	err := h.m.Previous(context.Background())
	assert.ErrorIs(t, err, rerrors.ErrPermissionDenied)
	assert.Equal(t, "No previous track available", rerrors.GetSuggestion(err))
	assert.Equal(t, []string{"previous"}, h.api.Calls()[before:])
	assert.Contains(t, h.notes.Texts(), "No previous track available")
}

func TestControlsRequireReadyDevice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.m.Next(ctx), rerrors.ErrDeviceNotReady)
	assert.ErrorIs(t, h.m.Previous(ctx), rerrors.ErrDeviceNotReady)
	assert.ErrorIs(t, h.m.TogglePlayPause(ctx), rerrors.ErrDeviceNotReady)
	assert.ErrorIs(t, h.m.Seek(ctx, time.Second), rerrors.ErrDeviceNotReady)
	assert.ErrorIs(t, h.m.PlayTrack(ctx, "spotify:track:x"), rerrors.ErrDeviceNotReady)
	assert.Empty(t, h.api.Calls())
}

func TestTogglePlayPause(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.remote.Emit(playing("spotify:track:x", 3*time.Minute, time.Minute))
	h.drain(t)
	ctx := context.Background()

	require.NoError(t, h.m.TogglePlayPause(ctx))
	assert.False(t, h.m.State().IsPlaying)
	require.NoError(t, h.m.TogglePlayPause(ctx))
	assert.True(t, h.m.State().IsPlaying)
	assert.Equal(t, 1, h.remote.Count("pause"))
	assert.Equal(t, 1, h.remote.Count("resume"))
}

func TestToggleWithNothingLoaded(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	err := h.m.TogglePlayPause(context.Background())
	assert.ErrorIs(t, err, ErrNothingLoaded)
	assert.Zero(t, h.remote.Count("resume"))
	assert.Contains(t, h.notes.Texts(), "No track loaded. Try playing a track first.")
}

func TestSeekClampsToTrack(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.remote.Emit(playing("spotify:track:x", 3*time.Minute, 0))
	h.drain(t)

	require.NoError(t, h.m.Seek(context.Background(), 10*time.Minute))
	assert.Equal(t, []time.Duration{3 * time.Minute}, h.remote.Seeks())
}

func TestPlayTrack(t *testing.T) {
	tests := []struct {
		name        string
		totalTracks int
		wantContext string
		wantOffset  int
	}{
		{"album context", 12, "spotify:album:AL", 2},
		{"single", 1, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.start(t)
			h.api.track = &client.Track{
				ID:          "T3",
				URI:         "spotify:track:T3",
				TrackNumber: 3,
				Album:       client.Album{URI: "spotify:album:AL", TotalTracks: tt.totalTracks},
			}

			require.NoError(t, h.m.PlayTrack(context.Background(), "spotify:track:T3"))

			plays := h.api.Plays()
			require.Len(t, plays, 1)
			assert.Equal(t, tt.wantContext, plays[0].ContextURI)
			if tt.wantContext == "" {
				assert.Equal(t, []string{"spotify:track:T3"}, plays[0].URIs)
				assert.Nil(t, h.m.State().Context)
				return
			}
			require.NotNil(t, plays[0].Offset)
			assert.Equal(t, tt.wantOffset, *plays[0].Offset.Position)
			assert.Equal(t, &core.PlayContext{Kind: core.ContextAlbum, URI: "spotify:album:AL"}, h.m.State().Context)
		})
	}
}

func TestPlayContext(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	require.NoError(t, h.m.PlayContext(context.Background(), "spotify:playlist:PL", 4))
	plays := h.api.Plays()
	require.Len(t, plays, 1)
	assert.Equal(t, "spotify:playlist:PL", plays[0].ContextURI)
	assert.Equal(t, 4, *plays[0].Offset.Position)
	assert.Contains(t, h.notes.Texts(), "Starting playback...")
}

func TestAddToQueue(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.AddToQueue(context.Background(), "spotify:track:q"))
	assert.Equal(t, []string{"queue spotify:track:q"}, h.api.Calls())
}

func TestDeviceErrorEvents(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.remote.Emit(device.Event{Kind: device.EventError, Error: device.ErrorPlayback, Message: "Playback failed: no list was loaded"})
	h.remote.Emit(device.Event{Kind: device.EventError, Error: device.ErrorAccount, Message: "premium"})
	h.remote.Emit(device.Event{Kind: device.EventError, Error: device.ErrorAuthentication, Message: "token"})
	h.drain(t)

	texts := h.notes.Texts()
	assert.Contains(t, texts, "Spotify account error. Premium required.")
	assert.NotContains(t, texts, "Playback error: Playback failed: no list was loaded")
	assert.NotContains(t, texts, "Spotify session expired. Sign in again.", "credential is still valid")
}

func TestAuthenticationErrorRefreshesUnexpiredToken(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.creds.Save(context.Background(), &auth.Token{
		AccessToken:  "REVOKED",
		RefreshToken: "R1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))
	h.start(t)

	h.remote.Emit(device.Event{Kind: device.EventError, Error: device.ErrorAuthentication, Message: "token"})
	h.drain(t)

	assert.Equal(t, 1, h.refresher.Calls())
	tok, err := h.creds.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.NotEqual(t, "REVOKED", tok.AccessToken)
	assert.Equal(t, "R1", tok.RefreshToken)
	assert.NotContains(t, h.notes.Texts(), "Spotify session expired. Sign in again.")
}

func TestAuthenticationErrorRejectedRefreshPrompts(t *testing.T) {
	h := newHarness(t)
	h.refresher.err = auth.ErrRefreshRejected
	h.start(t)

	h.remote.Emit(device.Event{Kind: device.EventError, Error: device.ErrorAuthentication, Message: "token"})
	h.drain(t)

	assert.Equal(t, 1, h.refresher.Calls())
	assert.Contains(t, h.notes.Texts(), "Spotify session expired. Sign in again.")
	tok, err := h.creds.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestAuthenticationErrorWithoutCredential(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	require.NoError(t, h.creds.Invalidate(context.Background()))

	h.remote.Emit(device.Event{Kind: device.EventError, Error: device.ErrorAuthentication, Message: "token"})
	h.drain(t)

	assert.Contains(t, h.notes.Texts(), "Spotify session expired. Sign in again.")
}

func TestPeriodicSyncAppliesRemoteState(t *testing.T) {
	h := newHarness(t, func(o *Options, _ *[]restore.Option) {
		o.SyncInterval = 50 * time.Millisecond
	})
	h.api.playback = &client.PlaybackState{
		IsPlaying:  true,
		ProgressMS: 5000,
		Item:       &client.Track{URI: "spotify:track:remote", Name: "Remote", DurationMS: 200_000},
		Context:    &client.Context{Type: "album", URI: "spotify:album:R"},
	}
	h.start(t)

	require.Eventually(t, func() bool {
		st := h.m.State()
		return st.Track != nil && st.Track.URI == "spotify:track:remote"
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, core.ContextAlbum, h.m.State().Context.Kind)
}

func TestStateAdvancesWhilePlaying(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	h := newHarness(t, func(o *Options, _ *[]restore.Option) { o.Now = clock })
	h.start(t)
	h.remote.Emit(playing("spotify:track:x", time.Minute, 50*time.Second))
	h.drain(t)

	mu.Lock()
	now = now.Add(5 * time.Second)
	mu.Unlock()
	assert.Equal(t, 55*time.Second, h.m.State().Position)

	mu.Lock()
	now = now.Add(time.Hour)
	mu.Unlock()
	assert.Equal(t, time.Minute, h.m.State().Position)
}

// heldRestorer blocks in Run until a result is sent and never reports its
// own restoring flag.
type heldRestorer struct {
	started chan struct{}
	result  chan restore.Result
}

func (r *heldRestorer) Run(ctx context.Context, _ string) restore.Result {
	close(r.started)
	select {
	case res := <-r.result:
		return res
	case <-ctx.Done():
		return restore.Result{Outcome: restore.Failed, Err: ctx.Err()}
	}
}

func (r *heldRestorer) Restoring() bool { return false }

func TestLiveStateDroppedUntilRestoreResultApplied(t *testing.T) {
	held := &heldRestorer{started: make(chan struct{}), result: make(chan restore.Result)}
	h := newHarnessWith(t, harnessSetup{restorer: held})

	require.NoError(t, h.m.Start(context.Background()))
	h.remote.Ready(devID)
	<-held.started
	assert.True(t, h.m.State().Restoring)

	h.remote.Emit(playing("spotify:track:live", 3*time.Minute, time.Minute))
	h.drain(t)
	assert.Nil(t, h.m.State().Track)

	held.result <- restore.Result{
		Outcome: restore.Succeeded,
		State: &core.PlaybackState{
			Track:    &core.Track{URI: "spotify:track:saved", Name: "Saved", Duration: 4 * time.Minute},
			Progress: 30 * time.Second,
		},
	}
	require.Eventually(t, func() bool {
		st := h.m.State()
		return !st.Restoring && st.Track != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "spotify:track:saved", h.m.State().Track.URI)
}

// gatedKV holds the first snapshot write until released.
type gatedKV struct {
	*kv.Memory
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedKV) Set(ctx context.Context, key, value string) error {
	if key == snapshot.Key {
		first := false
		g.once.Do(func() { first = true })
		if first {
			close(g.entered)
			<-g.release
		}
	}
	return g.Memory.Set(ctx, key, value)
}

func TestDisconnectWaitsForInflightSave(t *testing.T) {
	store := &gatedKV{Memory: kv.NewMemory(), entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarnessWith(t, harnessSetup{store: store})
	h.start(t)

	h.remote.Emit(playing("spotify:track:one", 3*time.Minute, 10*time.Second))
	<-store.entered

	done := make(chan error, 1)
	go func() { done <- h.m.Disconnect(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	require.NoError(t, <-done)

	snap, err := h.snaps.Peek(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap, "snapshot written during disconnect must not survive it")
}

func TestDebouncedSaveSkippedAfterDisconnect(t *testing.T) {
	h := newHarness(t, func(o *Options, _ *[]restore.Option) { o.SaveDebounce = 30 * time.Millisecond })
	h.start(t)

	h.remote.Emit(playing("spotify:track:one", 3*time.Minute, 10*time.Second))
	h.drain(t)
	require.NoError(t, h.m.Disconnect(context.Background()))

	time.Sleep(100 * time.Millisecond)
	snap, err := h.snaps.Peek(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestOnChangeReceivesEachUpdate(t *testing.T) {
	h := newHarness(t)
	var mu sync.Mutex
	var seen []State
	h.m.OnChange(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st)
	})
	h.start(t)

	h.remote.Emit(playing("spotify:track:one", 3*time.Minute, 10*time.Second))
	h.drain(t)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.True(t, seen[0].DeviceReady)
	last := seen[len(seen)-1]
	require.NotNil(t, last.Track)
	assert.Equal(t, "spotify:track:one", last.Track.URI)
}
