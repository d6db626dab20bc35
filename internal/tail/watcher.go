// Package tail follows a running reprise server and turns its state and
// notification streams into a sequence of playback events.
package tail

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/r3labs/sse/v2"

	"github.com/tessro/reprise/internal/notify"
	"github.com/tessro/reprise/internal/server"
)

// EventType represents the type of playback event.
type EventType int

const (
	EventTrackChange EventType = iota
	EventTrackComplete
	EventTrackSkip
	EventPause
	EventResume
	EventDeviceReady
	EventDeviceLost
	EventRestoring
	EventNotification
)

// Event represents a playback state change or a session notification.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Previous  *server.StateView
	Current   *server.StateView
	// Message is set for EventNotification.
	Message *notify.Message
}

// Watcher subscribes to the server's event streams and emits Events.
type Watcher struct {
	url    string
	logger *slog.Logger
	now    func() time.Time
	events chan Event
}

// NewWatcher creates a watcher for the /events endpoint at url.
func NewWatcher(url string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		url:    url,
		logger: logger,
		now:    time.Now,
		events: make(chan Event, 16),
	}
}

// Events returns the channel of playback events. It is closed when Run
// returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run follows both streams until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer close(w.events)
	defer wg.Wait()
	defer cancel()

	states := make(chan server.StateView, 16)
	errCh := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		c := sse.NewClient(w.url)
		errCh <- c.SubscribeWithContext(ctx, server.StreamState, func(msg *sse.Event) {
			var st server.StateView
			if len(msg.Data) == 0 {
				return
			}
			if err := json.Unmarshal(msg.Data, &st); err != nil {
				w.logger.Debug("skipping malformed state event", "error", err)
				return
			}
			select {
			case states <- st:
			case <-ctx.Done():
			}
		})
	}()

	go func() {
		defer wg.Done()
		c := sse.NewClient(w.url)
		errCh <- c.SubscribeWithContext(ctx, notify.StreamNotifications, func(msg *sse.Event) {
			var m notify.Message
			if len(msg.Data) == 0 {
				return
			}
			if err := json.Unmarshal(msg.Data, &m); err != nil {
				w.logger.Debug("skipping malformed notification", "error", err)
				return
			}
			w.emit(ctx, Event{Type: EventNotification, Timestamp: w.now(), Message: &m})
		})
	}()

	var prev *server.StateView
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				return err
			}
		case st := <-states:
			curr := st
			for _, e := range diffStates(prev, &curr, w.now()) {
				w.emit(ctx, e)
			}
			prev = &curr
		}
	}
}

func (w *Watcher) emit(ctx context.Context, e Event) {
	select {
	case w.events <- e:
	case <-ctx.Done():
	}
}

// diffStates compares two states and returns detected events.
func diffStates(prev, curr *server.StateView, now time.Time) []Event {
	if curr == nil {
		return nil
	}

	var events []Event
	add := func(t EventType) {
		events = append(events, Event{Type: t, Timestamp: now, Previous: prev, Current: curr})
	}

	// First state - no previous state
	if prev == nil {
		if curr.Track != nil {
			add(EventTrackChange)
		}
		return events
	}

	if !prev.DeviceReady && curr.DeviceReady {
		add(EventDeviceReady)
	} else if prev.DeviceReady && !curr.DeviceReady {
		add(EventDeviceLost)
	}

	if !prev.Restoring && curr.Restoring {
		add(EventRestoring)
	}

	if trackChanged(prev, curr) {
		switch {
		case prev.Track != nil && wasCompleted(prev):
			add(EventTrackComplete)
		case prev.Track != nil && curr.Track != nil:
			add(EventTrackSkip)
		}
		if curr.Track != nil {
			add(EventTrackChange)
		}
	}

	if prev.IsPlaying && !curr.IsPlaying {
		add(EventPause)
	} else if !prev.IsPlaying && curr.IsPlaying {
		add(EventResume)
	}

	return events
}

// trackChanged returns true if the track changed.
func trackChanged(prev, curr *server.StateView) bool {
	if prev.Track == nil && curr.Track == nil {
		return false
	}
	if prev.Track == nil || curr.Track == nil {
		return true
	}
	return prev.Track.URI != curr.Track.URI
}

// wasCompleted reports whether the track likely finished on its own.
func wasCompleted(state *server.StateView) bool {
	if state.Track == nil || state.Track.DurationMS == 0 {
		return false
	}
	// Consider completed if progress is >= 95% of duration
	threshold := float64(state.Track.DurationMS) * 0.95
	return float64(state.PositionMS) >= threshold
}
