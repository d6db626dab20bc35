package tail

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/tessro/reprise/internal/notify"
	"github.com/tessro/reprise/internal/server"
)

// Formatter formats events for output.
type Formatter struct {
	showEmoji     bool
	showTimestamp bool
	template      *template.Template
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithEmoji enables emoji output.
func WithEmoji(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showEmoji = enabled
	}
}

// WithTimestamp enables timestamp output.
func WithTimestamp(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showTimestamp = enabled
	}
}

// WithTemplate sets a custom format template. An unparsable template is
// ignored.
func WithTemplate(tmpl string) FormatterOption {
	return func(f *Formatter) {
		if tmpl != "" {
			t, err := template.New("format").Parse(tmpl)
			if err == nil {
				f.template = t
			}
		}
	}
}

// NewFormatter creates a new formatter with the given options.
func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{showEmoji: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format formats an event as a string.
func (f *Formatter) Format(e Event) string {
	if f.template != nil {
		return f.formatTemplate(e)
	}
	return f.formatLine(e)
}

func (f *Formatter) formatLine(e Event) string {
	var parts []string
	if f.showTimestamp {
		parts = append(parts, e.Timestamp.Format("15:04:05"))
	}
	if f.showEmoji {
		parts = append(parts, eventEmoji(e))
	}
	parts = append(parts, eventDescription(e))
	return strings.Join(parts, " ")
}

type templateData struct {
	Type      string
	Emoji     string
	Timestamp time.Time
	Time      string
	Title     string
	Artist    string
	Album     string
	Context   string
	Level     string
	Text      string
}

func (f *Formatter) formatTemplate(e Event) string {
	data := templateData{
		Type:      e.Type.String(),
		Emoji:     eventEmoji(e),
		Timestamp: e.Timestamp,
		Time:      e.Timestamp.Format("15:04:05"),
	}
	if t := subjectTrack(e); t != nil {
		data.Title = t.Name
		data.Artist = strings.Join(t.Artists, ", ")
		data.Album = t.Album
	}
	if e.Current != nil && e.Current.Context != nil {
		data.Context = e.Current.Context.URI
	}
	if e.Message != nil {
		data.Level = string(e.Message.Level)
		data.Text = e.Message.Text
	}

	var buf bytes.Buffer
	if err := f.template.Execute(&buf, data); err != nil {
		return f.formatLine(e)
	}
	return buf.String()
}

// subjectTrack is the track an event is about: the finished or skipped
// track for completions and skips, the current track otherwise.
func subjectTrack(e Event) *server.TrackView {
	switch e.Type {
	case EventTrackComplete, EventTrackSkip:
		if e.Previous != nil {
			return e.Previous.Track
		}
	default:
		if e.Current != nil {
			return e.Current.Track
		}
	}
	return nil
}

func trackLine(t *server.TrackView) string {
	if len(t.Artists) == 0 {
		return t.Name
	}
	return fmt.Sprintf("%s - %s", strings.Join(t.Artists, ", "), t.Name)
}

func eventDescription(e Event) string {
	t := subjectTrack(e)
	switch e.Type {
	case EventTrackChange:
		if t != nil {
			return "Now playing: " + trackLine(t)
		}
		return "Track changed"
	case EventTrackComplete:
		if t != nil {
			return "Finished: " + trackLine(t)
		}
		return "Track completed"
	case EventTrackSkip:
		if t != nil {
			return "Skipped: " + trackLine(t)
		}
		return "Track skipped"
	case EventPause:
		return "Paused"
	case EventResume:
		return "Resumed"
	case EventDeviceReady:
		return "Device ready"
	case EventDeviceLost:
		return "Device not ready"
	case EventRestoring:
		return "Restoring playback"
	case EventNotification:
		if e.Message != nil {
			return e.Message.Text
		}
		return "Notification"
	default:
		return "Unknown event"
	}
}

// String returns the snake_case event name used in templates and JSON.
func (t EventType) String() string {
	switch t {
	case EventTrackChange:
		return "track_change"
	case EventTrackComplete:
		return "track_complete"
	case EventTrackSkip:
		return "track_skip"
	case EventPause:
		return "pause"
	case EventResume:
		return "resume"
	case EventDeviceReady:
		return "device_ready"
	case EventDeviceLost:
		return "device_lost"
	case EventRestoring:
		return "restoring"
	case EventNotification:
		return "notification"
	default:
		return "unknown"
	}
}

func eventEmoji(e Event) string {
	switch e.Type {
	case EventTrackChange:
		return "🎵"
	case EventTrackComplete:
		return "✅"
	case EventTrackSkip:
		return "⏭️"
	case EventPause:
		return "⏸️"
	case EventResume:
		return "▶️"
	case EventDeviceReady:
		return "🔌"
	case EventDeviceLost:
		return "⚠️"
	case EventRestoring:
		return "♻️"
	case EventNotification:
		if e.Message != nil {
			switch e.Message.Level {
			case notify.LevelError:
				return "❌"
			case notify.LevelSuccess:
				return "✔️"
			}
		}
		return "💬"
	default:
		return "❓"
	}
}
