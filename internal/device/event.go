package device

import (
	"context"
	"time"

	"github.com/tessro/reprise/internal/core"
)

// State is the lifecycle of a device session.
type State int

const (
	Disconnected State = iota
	Connecting
	Ready
	NotReady
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case NotReady:
		return "not_ready"
	default:
		return "unknown"
	}
}

// EventKind discriminates Event.
type EventKind int

const (
	EventReady EventKind = iota
	EventNotReady
	EventStateChanged
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventNotReady:
		return "not_ready"
	case EventStateChanged:
		return "state_changed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrorKind classifies device error events.
type ErrorKind string

const (
	ErrorInitialization ErrorKind = "initialization"
	ErrorAuthentication ErrorKind = "authentication"
	ErrorAccount        ErrorKind = "account"
	ErrorPlayback       ErrorKind = "playback"
)

// Event is a notification from the playback device.
type Event struct {
	Kind EventKind

	// DeviceID is set for Ready and NotReady.
	DeviceID string
	// State is set for StateChanged; nil means nothing is loaded.
	State *core.PlaybackState

	// Error and Message are set for Error.
	Error   ErrorKind
	Message string
}

// Remote is a playback device backend: a source of events and a sink for
// transport commands.
type Remote interface {
	// Connect starts the backend. The returned channel carries events until
	// the backend stops, then it is closed.
	Connect(ctx context.Context) (<-chan Event, error)
	Close() error

	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
}
