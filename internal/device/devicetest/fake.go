// Package devicetest provides an in-memory device.Remote for tests.
package devicetest

import (
	"context"
	"sync"
	"time"

	"github.com/tessro/reprise/internal/device"
)

// Remote is a scriptable device.Remote. Push events with Emit and inspect
// the commands it received through Calls.
type Remote struct {
	ConnectErr error
	CommandErr error

	mu     sync.Mutex
	events chan device.Event
	closed bool
	calls  []string
	seeks  []time.Duration
}

// New returns a Remote with a buffered event stream.
func New() *Remote {
	return &Remote{events: make(chan device.Event, 64)}
}

func (r *Remote) Connect(context.Context) (<-chan device.Event, error) {
	if r.ConnectErr != nil {
		return nil, r.ConnectErr
	}
	return r.events, nil
}

// Emit delivers ev to the session.
func (r *Remote) Emit(ev device.Event) {
	r.events <- ev
}

// Ready emits a Ready event for id.
func (r *Remote) Ready(id string) {
	r.Emit(device.Event{Kind: device.EventReady, DeviceID: id})
}

// Drop ends the event stream, as a lost connection would.
func (r *Remote) Drop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
}

func (r *Remote) Close() error {
	r.record("close")
	return nil
}

func (r *Remote) Pause(context.Context) error {
	r.record("pause")
	return r.CommandErr
}

func (r *Remote) Resume(context.Context) error {
	r.record("resume")
	return r.CommandErr
}

func (r *Remote) Seek(_ context.Context, pos time.Duration) error {
	r.mu.Lock()
	r.seeks = append(r.seeks, pos)
	r.mu.Unlock()
	r.record("seek")
	return r.CommandErr
}

func (r *Remote) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

// Calls returns the commands received so far, in order.
func (r *Remote) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Count returns how many times call was received.
func (r *Remote) Count(call string) int {
	n := 0
	for _, c := range r.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// Seeks returns every requested seek position.
func (r *Remote) Seeks() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.seeks...)
}
