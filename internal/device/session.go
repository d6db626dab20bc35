// Package device owns the live handle to the playback device and its
// ready/not-ready lifecycle.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	rerrors "github.com/tessro/reprise/internal/errors"
)

const subscriberBuffer = 64

// Session wraps a Remote with lifecycle tracking and event fan-out.
type Session struct {
	remote Remote
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	deviceID string
	subs     []chan Event
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSession returns a disconnected session over remote.
func NewSession(remote Remote, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{remote: remote, logger: logger}
}

// Subscribe returns a channel receiving every subsequent event. It is closed
// on Disconnect.
func (s *Session) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// Connect starts the device. Calling it while already connected is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Disconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = Connecting
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	events, err := s.remote.Connect(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = Disconnected
		s.mu.Unlock()
		s.logger.Error("device initialization failed", "error", err)
		s.broadcast(runCtx, Event{Kind: EventError, Error: ErrorInitialization, Message: err.Error()})
		cancel()
		return fmt.Errorf("connect device: %w", err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.pump(runCtx, events, done)
	return nil
}

func (s *Session) pump(ctx context.Context, events <-chan Event, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				s.mu.Lock()
				wasReady := s.state == Ready
				id := s.deviceID
				if s.state != Disconnected {
					s.state = NotReady
				}
				s.mu.Unlock()
				if wasReady {
					s.logger.Warn("device event stream ended", "device_id", id)
					s.broadcast(ctx, Event{Kind: EventNotReady, DeviceID: id})
				}
				return
			}
			s.apply(ev)
			s.broadcast(ctx, ev)
		}
	}
}

func (s *Session) apply(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Kind {
	case EventReady:
		s.state = Ready
		s.deviceID = ev.DeviceID
		s.logger.Info("device ready", "device_id", ev.DeviceID)
	case EventNotReady:
		s.state = NotReady
		s.logger.Info("device not ready", "device_id", ev.DeviceID)
	case EventError:
		s.logger.Warn("device error", "kind", ev.Error, "message", ev.Message)
	}
}

func (s *Session) broadcast(ctx context.Context, ev Event) {
	s.mu.Lock()
	subs := append([]chan Event(nil), s.subs...)
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// Disconnect stops the device and closes every subscription. It is safe to
// call more than once.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == Disconnected && s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.state = Disconnected
	s.deviceID = ""
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := s.remote.Close()
	if done != nil {
		<-done
	}

	s.mu.Lock()
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.mu.Unlock()

	s.logger.Info("device disconnected")
	return err
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DeviceID returns the id announced by the last Ready event.
func (s *Session) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

func (s *Session) ready() error {
	if s.State() != Ready {
		return rerrors.ErrDeviceNotReady
	}
	return nil
}

// Pause pauses the device. Commands are never queued while not ready.
func (s *Session) Pause(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.remote.Pause(ctx)
}

// Resume resumes the device.
func (s *Session) Resume(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.remote.Resume(ctx)
}

// Seek moves the playhead of the current track.
func (s *Session) Seek(ctx context.Context, position time.Duration) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.remote.Seek(ctx, position)
}
