package notify

import (
	"context"
	"log/slog"

	"github.com/gregdel/pushover"
)

// pushoverSender is the subset of the Pushover client used here.
type pushoverSender interface {
	SendMessage(message *pushover.Message, recipient *pushover.Recipient) (*pushover.Response, error)
}

// PushoverSink forwards error notifications to a phone via Pushover.
// Other levels are ignored.
type PushoverSink struct {
	app       pushoverSender
	recipient *pushover.Recipient
	logger    *slog.Logger
	async     bool
}

// NewPushoverSink returns a sink sending with the given app token to recipient.
func NewPushoverSink(token, recipient string, logger *slog.Logger) *PushoverSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushoverSink{
		app:       pushover.New(token),
		recipient: pushover.NewRecipient(recipient),
		logger:    logger,
		async:     true,
	}
}

func (s *PushoverSink) Notify(_ context.Context, msg Message) {
	if msg.Level != LevelError {
		return
	}
	message := &pushover.Message{
		Message:   msg.Text,
		Title:     "reprise",
		Priority:  pushover.PriorityNormal,
		Timestamp: msg.Time.Unix(),
	}
	send := func() {
		if _, err := s.app.SendMessage(message, s.recipient); err != nil {
			s.logger.Warn("pushover delivery failed", "error", err)
		}
	}
	if s.async {
		go send()
		return
	}
	send()
}
