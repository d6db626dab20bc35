package player

import (
	"context"
	"log/slog"
	"time"

	"github.com/tessro/reprise/internal/core"
	"github.com/tessro/reprise/internal/device"
)

// seekTolerance is how far progress may drift from the expected position
// before a poll is treated as a seek.
const seekTolerance = 2 * time.Second

// ChangeKind names one difference between successive polls.
type ChangeKind int

const (
	ChangeTrack ChangeKind = iota
	ChangePause
	ChangeResume
	ChangeSeek
	ChangeContext
)

func (c ChangeKind) String() string {
	switch c {
	case ChangeTrack:
		return "track"
	case ChangePause:
		return "pause"
	case ChangeResume:
		return "resume"
	case ChangeSeek:
		return "seek"
	case ChangeContext:
		return "context"
	default:
		return "unknown"
	}
}

// watcher polls the Web API and reports state changes for one device.
type watcher struct {
	api      API
	deviceID string
	interval time.Duration
	logger   *slog.Logger
}

func newWatcher(api API, deviceID string, interval time.Duration, logger *slog.Logger) *watcher {
	return &watcher{api: api, deviceID: deviceID, interval: interval, logger: logger}
}

// poll returns the device's state, or nil when it has nothing loaded or
// playback lives on another device.
func (w *watcher) poll(ctx context.Context) (*core.PlaybackState, error) {
	raw, err := w.api.GetPlaybackState(ctx)
	if err != nil {
		return nil, err
	}
	if raw == nil || raw.Device.ID != w.deviceID {
		return nil, nil
	}
	state := raw.Core()
	if !state.HasTrack() {
		return nil, nil
	}
	return state, nil
}

func (w *watcher) run(ctx context.Context, out chan<- device.Event) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	prev, err := w.poll(ctx)
	if err == nil && prev != nil {
		if !w.emit(ctx, out, prev) {
			return
		}
	}

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			curr, err := w.poll(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				w.logger.Debug("playback poll failed", "error", err, "failures", failures)
				if failures >= maxPollFailures {
					w.logger.Warn("giving up on device after repeated poll failures", "device_id", w.deviceID)
					return
				}
				continue
			}
			failures = 0

			changes := diffStates(prev, curr, w.interval)
			if len(changes) > 0 {
				w.logger.Debug("playback changed", "changes", changes)
				if !w.emit(ctx, out, curr) {
					return
				}
			}
			prev = curr
		}
	}
}

func (w *watcher) emit(ctx context.Context, out chan<- device.Event, state *core.PlaybackState) bool {
	select {
	case out <- device.Event{Kind: device.EventStateChanged, State: state}:
		return true
	case <-ctx.Done():
		return false
	}
}

// diffStates compares two polls taken elapsed apart.
func diffStates(prev, curr *core.PlaybackState, elapsed time.Duration) []ChangeKind {
	if !prev.HasTrack() && !curr.HasTrack() {
		return nil
	}
	if !prev.HasTrack() || !curr.HasTrack() || prev.Track.URI != curr.Track.URI {
		return []ChangeKind{ChangeTrack}
	}

	var changes []ChangeKind
	if prev.IsPlaying && !curr.IsPlaying {
		changes = append(changes, ChangePause)
	} else if !prev.IsPlaying && curr.IsPlaying {
		changes = append(changes, ChangeResume)
	}

	if contextChanged(prev, curr) {
		changes = append(changes, ChangeContext)
	}

	expected := prev.Progress
	if prev.IsPlaying {
		expected += elapsed
	}
	drift := curr.Progress - expected
	if drift < 0 {
		drift = -drift
	}
	if drift > seekTolerance {
		changes = append(changes, ChangeSeek)
	}

	return changes
}

func contextChanged(prev, curr *core.PlaybackState) bool {
	if prev.Context == nil && curr.Context == nil {
		return false
	}
	if prev.Context == nil || curr.Context == nil {
		return true
	}
	return prev.Context.URI != curr.Context.URI
}
