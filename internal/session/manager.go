// Package session ties the credential, device, snapshot and restoration
// components into a single playback session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"github.com/tessro/reprise/internal/core"
	"github.com/tessro/reprise/internal/device"
	rerrors "github.com/tessro/reprise/internal/errors"
	"github.com/tessro/reprise/internal/notify"
	"github.com/tessro/reprise/internal/restore"
	"github.com/tessro/reprise/internal/snapshot"
	"github.com/tessro/reprise/internal/spotify/auth"
	"github.com/tessro/reprise/internal/spotify/client"
)

// Device is the live playback device.
type Device interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Subscribe() <-chan device.Event
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
}

// API is the subset of the Web API used by the session.
type API interface {
	restore.API
	Next(ctx context.Context, deviceID string) error
	Previous(ctx context.Context, deviceID string) error
	AddToQueue(ctx context.Context, uri string, deviceID string) error
	GetPlaybackState(ctx context.Context) (*client.PlaybackState, error)
	GetTrack(ctx context.Context, trackID string) (*client.Track, error)
}

// Credentials owns the Spotify credential.
type Credentials interface {
	GetValidCredential(ctx context.Context) (*auth.Token, error)
	ForceRefresh(ctx context.Context) (*auth.Token, error)
	Invalidate(ctx context.Context) error
}

// Restorer replays the saved snapshot onto a ready device.
type Restorer interface {
	Run(ctx context.Context, deviceID string) restore.Result
	Restoring() bool
}

// State is the in-memory view of the session.
type State struct {
	SessionID   string            `json:"session_id"`
	Track       *core.Track       `json:"track,omitempty"`
	IsPlaying   bool              `json:"is_playing"`
	Position    time.Duration     `json:"position"`
	Duration    time.Duration     `json:"duration"`
	Context     *core.PlayContext `json:"context,omitempty"`
	DeviceReady bool              `json:"device_ready"`
	DeviceID    string            `json:"device_id,omitempty"`
	Restoring   bool              `json:"restoring"`
}

// Options tunes timers and wiring. Zero intervals disable the matching job.
type Options struct {
	FlushInterval  time.Duration
	SyncInterval   time.Duration
	SaveDebounce   time.Duration
	RetryDelay     time.Duration
	TransferSettle time.Duration
	// SyncDelay is the wait before re-reading playback after a skip.
	SyncDelay time.Duration

	Logger   *slog.Logger
	Notifier notify.Sink
	Now      func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns the standard timings.
func DefaultOptions() Options {
	return Options{
		FlushInterval:  5 * time.Second,
		SyncInterval:   30 * time.Second,
		SaveDebounce:   time.Second,
		RetryDelay:     time.Second,
		TransferSettle: 500 * time.Millisecond,
		SyncDelay:      time.Second,
	}
}

// Manager owns the session state and reacts to device events.
type Manager struct {
	id       string
	device   Device
	api      API
	creds    Credentials
	snaps    *snapshot.Store
	engine   Restorer
	notifier notify.Sink
	logger   *slog.Logger
	opts     Options

	mu        sync.Mutex
	state     State
	updated   time.Time
	started   bool
	stopped   bool
	restoring bool
	baseCtx   context.Context
	cancel    context.CancelFunc
	scheduler *gocron.Scheduler
	saveTimer *time.Timer
	observers []func(State)

	loopDone  chan struct{}
	restoreWG sync.WaitGroup
	// saveMu orders background saves against Disconnect's clear.
	saveMu sync.Mutex
}

// New returns a Manager over the given components.
func New(dev Device, api API, creds Credentials, snaps *snapshot.Store, engine Restorer, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Millisecond
	}
	id := uuid.NewString()
	return &Manager{
		id:       id,
		device:   dev,
		api:      api,
		creds:    creds,
		snaps:    snaps,
		engine:   engine,
		notifier: opts.Notifier,
		logger:   opts.Logger.With("session_id", id),
		opts:     opts,
		state:    State{SessionID: id},
	}
}

// ID returns the session id.
func (m *Manager) ID() string { return m.id }

// OnChange registers fn to receive the state after each change.
func (m *Manager) OnChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Start connects the device and begins processing its events. ctx bounds
// the whole session, including in-flight restorations.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	runCtx, cancel := context.WithCancel(ctx)
	m.baseCtx = ctx
	m.cancel = cancel
	m.loopDone = make(chan struct{})
	m.mu.Unlock()

	events := m.device.Subscribe()
	go m.loop(runCtx, events)

	if err := m.startJobs(runCtx); err != nil {
		return err
	}

	m.logger.Info("starting playback session")
	return m.device.Connect(ctx)
}

func (m *Manager) startJobs(ctx context.Context) error {
	s := gocron.NewScheduler(time.UTC)
	if d := m.opts.FlushInterval; d > 0 {
		if _, err := s.Every(d).WaitForSchedule().SingletonMode().Do(func() { m.flush(ctx) }); err != nil {
			return fmt.Errorf("schedule snapshot flush: %w", err)
		}
	}
	if d := m.opts.SyncInterval; d > 0 {
		if _, err := s.Every(d).WaitForSchedule().SingletonMode().Do(func() { m.sync(ctx) }); err != nil {
			return fmt.Errorf("schedule playback sync: %w", err)
		}
	}
	s.StartAsync()

	m.mu.Lock()
	m.scheduler = s
	m.mu.Unlock()
	return nil
}

func (m *Manager) loop(ctx context.Context, events <-chan device.Event) {
	defer close(m.loopDone)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handle(ctx, ev)
		}
	}
}

func (m *Manager) handle(ctx context.Context, ev device.Event) {
	switch ev.Kind {
	case device.EventReady:
		m.mu.Lock()
		m.state.DeviceReady = true
		m.state.DeviceID = ev.DeviceID
		m.mu.Unlock()
		m.changed()
		m.startRestore(ev.DeviceID)

	case device.EventNotReady:
		m.mu.Lock()
		m.state.DeviceReady = false
		m.mu.Unlock()
		m.logger.Info("device went offline", "device_id", ev.DeviceID)
		m.changed()

	case device.EventStateChanged:
		if ev.State == nil {
			return
		}
		if !m.apply(ev.State) {
			m.logger.Debug("ignoring device state during restoration")
			return
		}
		m.scheduleSave()

	case device.EventError:
		m.handleDeviceError(ctx, ev)
	}
}

// startRestore sets the restoring mark before the attempt starts and clears
// it only after the result has been applied.
func (m *Manager) startRestore(deviceID string) {
	m.mu.Lock()
	if m.restoring || m.stopped {
		m.mu.Unlock()
		return
	}
	m.restoring = true
	m.mu.Unlock()

	m.restoreWG.Add(1)
	go func() {
		defer m.restoreWG.Done()
		res := m.engine.Run(m.baseCtx, deviceID)

		m.mu.Lock()
		m.restoring = false
		stopped := m.stopped
		if !stopped && res.Outcome == restore.Succeeded && res.State != nil {
			m.applyLocked(res.State)
		}
		m.mu.Unlock()
		if !stopped {
			m.changed()
		}
	}()
}

// isRestoring reports whether a restoration owns the session state.
func (m *Manager) isRestoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restoringLocked()
}

func (m *Manager) restoringLocked() bool {
	return m.restoring || m.engine.Restoring()
}

func (m *Manager) handleDeviceError(ctx context.Context, ev device.Event) {
	switch ev.Error {
	case device.ErrorAuthentication:
		if _, err := m.creds.ForceRefresh(ctx); err != nil {
			m.logger.Warn("credential no longer valid", "error", err)
			if errors.Is(err, rerrors.ErrAuthRequired) {
				m.notifier.Notify(ctx, notify.Error("Spotify session expired. Sign in again."))
			}
		}
	case device.ErrorAccount:
		m.notifier.Notify(ctx, notify.Error("Spotify account error. Premium required."))
	case device.ErrorPlayback:
		if strings.Contains(ev.Message, "no list was loaded") {
			m.logger.Debug("no playback context loaded")
			return
		}
		m.notifier.Notify(ctx, notify.Error("Playback error: "+ev.Message))
	case device.ErrorInitialization:
		m.notifier.Notify(ctx, notify.Error("Failed to initialize player"))
	}
}

// apply folds a reported playback state into the session. It is dropped
// while a restoration runs; the result reports whether the state was taken.
func (m *Manager) apply(st *core.PlaybackState) bool {
	if !st.HasTrack() {
		return false
	}
	m.mu.Lock()
	if m.restoringLocked() {
		m.mu.Unlock()
		return false
	}
	m.applyLocked(st)
	m.mu.Unlock()
	m.changed()
	return true
}

func (m *Manager) applyLocked(st *core.PlaybackState) {
	if !st.HasTrack() {
		return
	}
	track := *st.Track
	track.Artists = append([]string(nil), st.Track.Artists...)

	m.state.Track = &track
	m.state.IsPlaying = st.IsPlaying
	m.state.Duration = track.Duration
	m.state.Position = st.ClampedProgress()
	if st.Context != nil && st.Context.URI != "" {
		c := *st.Context
		m.state.Context = &c
	}
	m.updated = m.opts.Now()
}

func (m *Manager) changed() {
	st := m.State()
	m.mu.Lock()
	observers := slices.Clone(m.observers)
	m.mu.Unlock()
	for _, fn := range observers {
		fn(st)
	}
}

// State returns a copy of the session state with the position advanced to now.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state
	st.Position = m.positionLocked()
	st.Restoring = m.restoringLocked()
	if st.Track != nil {
		t := *st.Track
		st.Track = &t
	}
	if st.Context != nil {
		c := *st.Context
		st.Context = &c
	}
	return st
}

func (m *Manager) positionLocked() time.Duration {
	pos := m.state.Position
	if m.state.IsPlaying && !m.updated.IsZero() {
		pos += m.opts.Now().Sub(m.updated)
	}
	return core.ClampPosition(pos, m.state.Duration)
}

// playbackState returns what should be persisted, or nil when the device is
// not ready or nothing is loaded.
func (m *Manager) playbackState() *core.PlaybackState {
	st := m.State()
	if !st.DeviceReady || st.Track == nil {
		return nil
	}
	return &core.PlaybackState{
		Track:     st.Track,
		Context:   st.Context,
		IsPlaying: st.IsPlaying,
		Progress:  st.Position,
	}
}

// Save persists the current state unless a restoration is running.
func (m *Manager) Save(ctx context.Context) error {
	if m.isRestoring() {
		return nil
	}
	st := m.playbackState()
	if st == nil {
		return nil
	}
	return m.snaps.Save(ctx, snapshot.FromState(st))
}

func (m *Manager) scheduleSave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	ctx := m.baseCtx
	m.saveTimer = time.AfterFunc(m.opts.SaveDebounce, func() {
		if err := m.backgroundSave(ctx); err != nil {
			m.logger.Warn("debounced save failed", "error", err)
		}
	})
}

// backgroundSave is Save for timers and jobs: it does nothing once the
// session has stopped.
func (m *Manager) backgroundSave(ctx context.Context) error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped {
		return nil
	}
	return m.Save(ctx)
}

func (m *Manager) flush(ctx context.Context) {
	if err := m.backgroundSave(ctx); err != nil {
		m.logger.Warn("periodic save failed", "error", err)
	}
}

// sync refreshes the session from the Web API's view of playback.
func (m *Manager) sync(ctx context.Context) {
	if m.isRestoring() || !m.State().DeviceReady {
		return
	}
	ps, err := m.api.GetPlaybackState(ctx)
	if err != nil {
		m.logger.Debug("playback sync failed", "error", err)
		return
	}
	if ps == nil {
		m.logger.Debug("no active playback to sync")
		return
	}
	m.apply(ps.Core())
}

func (m *Manager) syncLater() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || m.baseCtx == nil {
		return
	}
	ctx := m.baseCtx
	time.AfterFunc(m.opts.SyncDelay, func() { m.sync(ctx) })
}

// stop halts timers and the device. It reports whether anything was running.
func (m *Manager) stop() bool {
	m.mu.Lock()
	if m.stopped || !m.started {
		m.stopped = true
		m.mu.Unlock()
		return false
	}
	m.stopped = true
	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	scheduler, cancel, loopDone := m.scheduler, m.cancel, m.loopDone
	m.mu.Unlock()

	cancel()
	if scheduler != nil {
		scheduler.Stop()
	}
	if err := m.device.Disconnect(); err != nil {
		m.logger.Warn("device disconnect failed", "error", err)
	}
	<-loopDone
	return true
}

// Close saves the current state, stops timers and disconnects the device.
// The credential and snapshot are kept for the next start.
func (m *Manager) Close(ctx context.Context) error {
	err := m.Save(ctx)
	if err != nil {
		m.logger.Warn("final save failed", "error", err)
	}
	if m.stop() {
		m.restoreWG.Wait()
		m.logger.Info("playback session closed")
	}
	return err
}

// Disconnect ends the session for good: the device is released and the
// credential and snapshot are removed. Calling it again has no further effect.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.stop()

	// Wait out a background save that started before the stop.
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	var errs []error
	if err := m.creds.Invalidate(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := m.snaps.Clear(ctx); err != nil {
		errs = append(errs, err)
	}

	m.mu.Lock()
	m.state = State{SessionID: m.id}
	m.updated = time.Time{}
	m.mu.Unlock()
	m.changed()

	return errors.Join(errs...)
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
