package core

import "time"

// PlaybackState is what a device or the Web API reports as currently playing.
type PlaybackState struct {
	Track     *Track        `json:"track"`
	Context   *PlayContext  `json:"context,omitempty"`
	Device    *Device       `json:"device,omitempty"`
	IsPlaying bool          `json:"is_playing"`
	Progress  time.Duration `json:"progress"`
}

// HasTrack returns true if there is an active track.
func (s *PlaybackState) HasTrack() bool {
	return s != nil && s.Track != nil && s.Track.URI != ""
}

// ClampedProgress returns Progress bounded to [0, track duration].
func (s *PlaybackState) ClampedProgress() time.Duration {
	if !s.HasTrack() {
		return 0
	}
	return ClampPosition(s.Progress, s.Track.Duration)
}

// ProgressPercent returns playback progress as a percentage (0-100).
func (s *PlaybackState) ProgressPercent() float64 {
	if !s.HasTrack() || s.Track.Duration == 0 {
		return 0
	}
	return float64(s.ClampedProgress()) / float64(s.Track.Duration) * 100
}

// ClampPosition bounds pos to [0, duration].
func ClampPosition(pos, duration time.Duration) time.Duration {
	if pos < 0 {
		return 0
	}
	if duration >= 0 && pos > duration {
		return duration
	}
	return pos
}
