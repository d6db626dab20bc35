// Package player exposes a Spotify Connect device, reached through the Web
// API, as a playback device.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tessro/reprise/internal/device"
	"github.com/tessro/reprise/internal/spotify/client"
)

// maxPollFailures is how many consecutive failed polls end the event stream.
const maxPollFailures = 3

// API is the subset of the Web API client the player needs.
type API interface {
	GetDevices(ctx context.Context) ([]client.Device, error)
	GetPlaybackState(ctx context.Context) (*client.PlaybackState, error)
	Play(ctx context.Context, deviceID string, opts *client.PlayOptions) error
	Pause(ctx context.Context, deviceID string) error
	Seek(ctx context.Context, positionMs int, deviceID string) error
}

// Options selects the device and its polling cadence.
type Options struct {
	// DeviceID wins over DeviceName when both are set.
	DeviceID     string
	DeviceName   string
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Player implements device.Remote on top of the Web API.
type Player struct {
	api      API
	opts     Options
	logger   *slog.Logger
	deviceID string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new Web API player.
func New(api API, opts Options) *Player {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{api: api, opts: opts, logger: logger}
}

// Connect resolves the configured device and starts watching its state.
func (p *Player) Connect(ctx context.Context) (<-chan device.Event, error) {
	dev, err := p.findDevice(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.mu.Lock()
	p.deviceID = dev.ID
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	out := make(chan device.Event, 16)
	out <- device.Event{Kind: device.EventReady, DeviceID: dev.ID}

	w := newWatcher(p.api, dev.ID, p.opts.PollInterval, p.logger)
	go func() {
		defer close(done)
		defer close(out)
		w.run(runCtx, out)
	}()
	return out, nil
}

func (p *Player) findDevice(ctx context.Context) (*client.Device, error) {
	devices, err := p.api.GetDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for i := range devices {
		d := &devices[i]
		if p.opts.DeviceID != "" {
			if d.ID == p.opts.DeviceID {
				return d, nil
			}
			continue
		}
		if p.opts.DeviceName != "" && strings.EqualFold(d.Name, p.opts.DeviceName) {
			return d, nil
		}
	}
	want := p.opts.DeviceID
	if want == "" {
		want = p.opts.DeviceName
	}
	return nil, fmt.Errorf("device %q not found among %d available devices", want, len(devices))
}

// Close stops the watcher.
func (p *Player) Close() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

func (p *Player) id() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deviceID
}

// Pause pauses playback.
func (p *Player) Pause(ctx context.Context) error {
	return p.api.Pause(ctx, p.id())
}

// Resume resumes playback.
func (p *Player) Resume(ctx context.Context) error {
	return p.api.Play(ctx, p.id(), nil)
}

// Seek seeks to a position in the current track.
func (p *Player) Seek(ctx context.Context, position time.Duration) error {
	return p.api.Seek(ctx, int(position.Milliseconds()), p.id())
}

// Ensure Player implements device.Remote
var _ device.Remote = (*Player)(nil)
