package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/tessro/reprise/internal/core"
	rerrors "github.com/tessro/reprise/internal/errors"
	"github.com/tessro/reprise/internal/notify"
	"github.com/tessro/reprise/internal/spotify/client"
)

// ErrNothingLoaded is returned when resuming with no track to resume.
var ErrNothingLoaded = errors.New("no track loaded")

func (m *Manager) readyDevice() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.DeviceReady || m.state.DeviceID == "" {
		return "", rerrors.ErrDeviceNotReady
	}
	return m.state.DeviceID, nil
}

// TogglePlayPause pauses when playing and resumes otherwise.
func (m *Manager) TogglePlayPause(ctx context.Context) error {
	if _, err := m.readyDevice(); err != nil {
		return err
	}
	st := m.State()

	var err error
	if st.IsPlaying {
		err = m.device.Pause(ctx)
	} else {
		if st.Track == nil {
			ps, perr := m.api.GetPlaybackState(ctx)
			if perr != nil || ps == nil || ps.Item == nil {
				m.notifier.Notify(ctx, notify.Error("No track loaded. Try playing a track first."))
				return ErrNothingLoaded
			}
		}
		err = m.device.Resume(ctx)
	}
	if err != nil {
		m.playbackError(ctx, err)
		m.syncLater()
		return err
	}

	m.mu.Lock()
	m.state.Position = m.positionLocked()
	m.state.IsPlaying = !st.IsPlaying
	m.updated = m.opts.Now()
	m.mu.Unlock()
	m.changed()
	return nil
}

func (m *Manager) playbackError(ctx context.Context, err error) {
	m.logger.Warn("playback command failed", "error", err)
	switch {
	case errors.Is(err, rerrors.ErrDeviceInactive):
		m.notifier.Notify(ctx, notify.Error("No active playback session. Try playing a track first."))
	case errors.Is(err, rerrors.ErrPermissionDenied):
		m.notifier.Notify(ctx, notify.Error("Premium account required for this feature."))
	default:
		m.notifier.Notify(ctx, notify.Error("Playback error: "+err.Error()))
	}
}

// Next skips to the next track.
func (m *Manager) Next(ctx context.Context) error {
	return m.skip(ctx, "next", m.api.Next)
}

// Previous skips to the previous track.
func (m *Manager) Previous(ctx context.Context) error {
	return m.skip(ctx, "previous", m.api.Previous)
}

// skip issues a skip command. If Spotify reports the device inactive, it
// transfers playback to the device and retries exactly once.
func (m *Manager) skip(ctx context.Context, direction string, call func(context.Context, string) error) error {
	deviceID, err := m.readyDevice()
	if err != nil {
		return err
	}

	transferred := false
	backoff := retry.WithMaxRetries(1, retry.NewConstant(m.opts.RetryDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := call(ctx, deviceID)
		if err == nil || transferred || !errors.Is(err, rerrors.ErrDeviceInactive) {
			return err
		}
		transferred = true
		m.logger.Info("device inactive, transferring before retry", "action", direction)
		if terr := m.api.TransferPlayback(ctx, deviceID, false); terr != nil {
			return fmt.Errorf("transfer playback: %w", terr)
		}
		return retry.RetryableError(err)
	})

	switch {
	case err == nil:
		m.syncLater()
		return nil
	case errors.Is(err, rerrors.ErrPermissionDenied):
		msg := fmt.Sprintf("No %s track available", direction)
		m.notifier.Notify(ctx, notify.Info(msg))
		return rerrors.WithSuggestion(err, msg)
	default:
		m.logger.Warn("skip failed", "action", direction, "error", err)
		m.notifier.Notify(ctx, notify.Error(fmt.Sprintf("Cannot go to %s track. Try playing an album or playlist.", direction)))
		return err
	}
}

// Seek moves the playhead, clamped to the current track.
func (m *Manager) Seek(ctx context.Context, position time.Duration) error {
	if _, err := m.readyDevice(); err != nil {
		return err
	}
	m.mu.Lock()
	position = core.ClampPosition(position, m.state.Duration)
	m.mu.Unlock()

	if err := m.device.Seek(ctx, position); err != nil {
		m.playbackError(ctx, err)
		return err
	}

	m.mu.Lock()
	m.state.Position = position
	m.updated = m.opts.Now()
	m.mu.Unlock()
	m.changed()
	return nil
}

// PlayTrack plays the track at uri. When the track belongs to an album with
// more than one track, the album is played starting at that track.
func (m *Manager) PlayTrack(ctx context.Context, uri string) error {
	deviceID, err := m.takeOver(ctx)
	if err != nil {
		return err
	}

	opts := &client.PlayOptions{URIs: []string{uri}}
	var pc *core.PlayContext
	t, err := m.api.GetTrack(ctx, core.URIID(uri))
	switch {
	case err != nil:
		m.logger.Debug("track lookup failed, playing single track", "uri", uri, "error", err)
	case t != nil:
		ct := t.Core()
		if ct.AlbumURI != "" && ct.AlbumTracks > 1 {
			opts = &client.PlayOptions{
				ContextURI: ct.AlbumURI,
				Offset:     client.OffsetPosition(max(ct.TrackNumber-1, 0)),
			}
			pc = &core.PlayContext{Kind: core.ContextAlbum, URI: ct.AlbumURI}
		}
	}

	return m.startPlayback(ctx, deviceID, opts, pc)
}

// PlayContext plays an album or playlist from the track at offset.
func (m *Manager) PlayContext(ctx context.Context, contextURI string, offset int) error {
	deviceID, err := m.takeOver(ctx)
	if err != nil {
		return err
	}
	opts := &client.PlayOptions{ContextURI: contextURI}
	if offset > 0 {
		opts.Offset = client.OffsetPosition(offset)
	}
	return m.startPlayback(ctx, deviceID, opts, core.ParseContext(contextURI))
}

// AddToQueue appends uri to the playback queue.
func (m *Manager) AddToQueue(ctx context.Context, uri string) error {
	if err := m.api.AddToQueue(ctx, uri, ""); err != nil {
		m.logger.Warn("add to queue failed", "uri", uri, "error", err)
		return err
	}
	m.logger.Debug("added to queue", "uri", uri)
	return nil
}

// takeOver moves playback to this device and waits for Spotify to settle.
func (m *Manager) takeOver(ctx context.Context) (string, error) {
	deviceID, err := m.readyDevice()
	if err != nil {
		return "", err
	}
	if err := m.api.TransferPlayback(ctx, deviceID, false); err != nil {
		m.logger.Warn("transfer playback failed", "error", err)
	}
	if err := m.opts.Sleep(ctx, m.opts.TransferSettle); err != nil {
		return "", err
	}
	return deviceID, nil
}

func (m *Manager) startPlayback(ctx context.Context, deviceID string, opts *client.PlayOptions, pc *core.PlayContext) error {
	if err := m.api.Play(ctx, deviceID, opts); err != nil {
		m.logger.Warn("start playback failed", "error", err)
		m.notifier.Notify(ctx, notify.Error("Failed to start playback"))
		return err
	}
	m.mu.Lock()
	m.state.Context = pc
	m.mu.Unlock()
	m.notifier.Notify(ctx, notify.Success("Starting playback..."))
	m.changed()
	return nil
}
