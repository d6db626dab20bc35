// Package restore replays a saved playback snapshot onto a freshly ready
// device.
package restore

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tessro/reprise/internal/core"
	rerrors "github.com/tessro/reprise/internal/errors"
	"github.com/tessro/reprise/internal/notify"
	"github.com/tessro/reprise/internal/snapshot"
	"github.com/tessro/reprise/internal/spotify/auth"
	"github.com/tessro/reprise/internal/spotify/client"
)

// Notification texts.
const (
	MsgRestored = "Playback restored"
	MsgFailed   = "Failed to restore playback"
)

// API is the subset of the Web API client used for restoration.
type API interface {
	TransferPlayback(ctx context.Context, deviceID string, play bool) error
	Play(ctx context.Context, deviceID string, opts *client.PlayOptions) error
	GetAlbumTracks(ctx context.Context, albumID string) ([]client.SimpleTrack, error)
}

// Credentials yields a valid Spotify credential.
type Credentials interface {
	GetValidCredential(ctx context.Context) (*auth.Token, error)
}

// Pauser pauses the local device.
type Pauser interface {
	Pause(ctx context.Context) error
}

// State is the engine lifecycle.
type State int32

const (
	Idle State = iota
	Restoring
	Succeeded
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Restoring:
		return "restoring"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Method records which resume strategy succeeded.
type Method string

const (
	MethodNone    Method = ""
	MethodContext Method = "context"
	MethodTrack   Method = "track"
)

// Result describes one restoration attempt.
type Result struct {
	Outcome  State
	Method   Method
	Position time.Duration
	// State is the restored playback state, set on success.
	State *core.PlaybackState
	Err   error
}

// Delays are the settle waits between restoration steps.
type Delays struct {
	AfterReady    time.Duration
	AfterTransfer time.Duration
	BeforePause   time.Duration
}

// DefaultDelays returns the standard settle waits.
func DefaultDelays() Delays {
	return Delays{
		AfterReady:    2 * time.Second,
		AfterTransfer: time.Second,
		BeforePause:   2 * time.Second,
	}
}

// Engine restores a snapshot onto a device. At most one Run is in flight.
type Engine struct {
	api      API
	creds    Credentials
	snaps    *snapshot.Store
	device   Pauser
	notifier notify.Sink
	logger   *slog.Logger
	delays   Delays
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time

	running atomic.Bool
	last    atomic.Int32
}

// Option configures an Engine.
type Option func(*Engine)

func WithDelays(d Delays) Option {
	return func(e *Engine) { e.delays = d }
}

func WithNotifier(n notify.Sink) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSleep replaces the settle wait, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New returns an Engine and installs it as the snapshot store's gate so
// saves are suppressed while it runs.
func New(api API, creds Credentials, snaps *snapshot.Store, device Pauser, opts ...Option) *Engine {
	e := &Engine{
		api:      api,
		creds:    creds,
		snaps:    snaps,
		device:   device,
		notifier: notify.Discard,
		logger:   slog.Default(),
		delays:   DefaultDelays(),
		sleep:    sleepCtx,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	snaps.SetGate(e)
	return e
}

// Restoring reports whether a restoration is in flight.
func (e *Engine) Restoring() bool {
	return e.running.Load()
}

// State returns Restoring while a run is in flight, otherwise the outcome of
// the last run.
func (e *Engine) State() State {
	if e.running.Load() {
		return Restoring
	}
	return State(e.last.Load())
}

// Run attempts one restoration onto deviceID. A call made while another is in
// flight returns Skipped without side effects.
func (e *Engine) Run(ctx context.Context, deviceID string) Result {
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Debug("restoration already in flight")
		return Result{Outcome: Skipped}
	}
	res := e.run(ctx, deviceID)
	e.last.Store(int32(res.Outcome))
	e.running.Store(false)
	return res
}

func (e *Engine) run(ctx context.Context, deviceID string) Result {
	if err := e.sleep(ctx, e.delays.AfterReady); err != nil {
		return Result{Outcome: Failed, Err: err}
	}

	snap, err := e.snaps.Load(ctx)
	if err != nil {
		e.logger.Warn("could not read snapshot", "error", err)
		return Result{Outcome: Skipped, Err: fmt.Errorf("%w: %w", rerrors.ErrRestorationUnavailable, err)}
	}
	if snap == nil {
		e.logger.Debug("no snapshot to restore")
		return Result{Outcome: Skipped, Err: rerrors.ErrRestorationUnavailable}
	}

	pos := snap.ResumePosition(e.now())
	log := e.logger.With("track", snap.Track.URI, "device_id", deviceID)
	log.Info("restoring playback", "position", pos, "playing", snap.IsPlaying, "age", snap.Age(e.now()).Round(time.Second))

	if _, err := e.creds.GetValidCredential(ctx); err != nil {
		log.Warn("restoration aborted: no valid credential", "error", err)
		return e.fail(ctx, pos, err)
	}

	if err := e.api.TransferPlayback(ctx, deviceID, false); err != nil {
		log.Warn("transfer before restore failed", "error", err)
	}
	if err := e.sleep(ctx, e.delays.AfterTransfer); err != nil {
		return Result{Outcome: Failed, Position: pos, Err: err}
	}

	method := MethodNone
	if pc := snap.PlayContext(); pc != nil {
		if err := e.resumeContext(ctx, deviceID, pc, snap.Track.URI, pos); err != nil {
			log.Warn("context resume failed, falling back to track", "context", pc.URI, "error", err)
		} else {
			method = MethodContext
		}
	}
	if method == MethodNone {
		if err := e.resumeTrack(ctx, deviceID, snap.Track.URI, pos); err != nil {
			log.Error("track resume failed", "error", err)
			return e.fail(ctx, pos, err)
		}
		method = MethodTrack
	}

	if !snap.IsPlaying {
		if err := e.sleep(ctx, e.delays.BeforePause); err != nil {
			return Result{Outcome: Failed, Method: method, Position: pos, Err: err}
		}
		if err := e.device.Pause(ctx); err != nil {
			log.Warn("pause after restore failed", "error", err)
		}
	}

	if err := e.snaps.Clear(ctx); err != nil {
		log.Warn("could not clear restored snapshot", "error", err)
	}
	e.notifier.Notify(ctx, notify.Success(MsgRestored))
	log.Info("playback restored", "method", string(method))

	return Result{
		Outcome:  Succeeded,
		Method:   method,
		Position: pos,
		State:    snap.State(pos),
	}
}

func (e *Engine) fail(ctx context.Context, pos time.Duration, cause error) Result {
	if err := e.snaps.Clear(ctx); err != nil {
		e.logger.Warn("could not clear snapshot", "error", err)
	}
	e.notifier.Notify(ctx, notify.Error(MsgFailed))
	return Result{
		Outcome:  Failed,
		Position: pos,
		Err:      fmt.Errorf("%w: %w", rerrors.ErrRestorationFailed, cause),
	}
}

// resumeContext starts the context at the saved track. Albums are addressed
// by track index, playlists by track URI, other contexts from their start.
func (e *Engine) resumeContext(ctx context.Context, deviceID string, pc *core.PlayContext, trackURI string, pos time.Duration) error {
	opts := &client.PlayOptions{
		ContextURI: pc.URI,
		PositionMS: int(pos.Milliseconds()),
	}
	switch pc.Kind {
	case core.ContextAlbum:
		opts.Offset = e.albumOffset(ctx, pc.URI, trackURI)
	case core.ContextPlaylist:
		opts.Offset = &client.PlayOffset{URI: trackURI}
	}
	return e.api.Play(ctx, deviceID, opts)
}

func (e *Engine) albumOffset(ctx context.Context, albumURI, trackURI string) *client.PlayOffset {
	tracks, err := e.api.GetAlbumTracks(ctx, core.URIID(albumURI))
	if err != nil {
		e.logger.Debug("album track lookup failed", "album", albumURI, "error", err)
		return &client.PlayOffset{URI: trackURI}
	}
	id := core.URIID(trackURI)
	for i, t := range tracks {
		if t.URI == trackURI || (t.ID != "" && t.ID == id) {
			return client.OffsetPosition(i)
		}
	}
	return &client.PlayOffset{URI: trackURI}
}

func (e *Engine) resumeTrack(ctx context.Context, deviceID, trackURI string, pos time.Duration) error {
	return e.api.Play(ctx, deviceID, &client.PlayOptions{
		URIs:       []string{trackURI},
		PositionMS: int(pos.Milliseconds()),
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
