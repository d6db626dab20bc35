package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/r3labs/sse/v2"
)

// StreamNotifications is the SSE stream carrying notifications.
const StreamNotifications = "notifications"

// SSESink publishes messages as JSON events on an SSE stream.
type SSESink struct {
	server *sse.Server
	stream string
	logger *slog.Logger
}

// NewSSESink creates the notifications stream on server.
func NewSSESink(server *sse.Server, logger *slog.Logger) *SSESink {
	if logger == nil {
		logger = slog.Default()
	}
	server.CreateStream(StreamNotifications)
	return &SSESink{server: server, stream: StreamNotifications, logger: logger}
}

// NewSSEServer returns an SSE server that does not replay old events to
// new subscribers.
func NewSSEServer() *sse.Server {
	server := sse.New()
	server.AutoReplay = false
	return server
}

func (s *SSESink) Notify(_ context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to encode notification", "error", err)
		return
	}
	s.server.Publish(s.stream, &sse.Event{Data: data})
}
