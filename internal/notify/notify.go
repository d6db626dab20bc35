// Package notify delivers user-facing status messages. Delivery is
// fire-and-forget: sinks log their own failures and never return them.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Level classifies a message.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Message is a single notification.
type Message struct {
	Level Level     `json:"level"`
	Text  string    `json:"text"`
	Time  time.Time `json:"time"`
}

// Sink receives notifications.
type Sink interface {
	Notify(ctx context.Context, msg Message)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, msg Message)

func (f SinkFunc) Notify(ctx context.Context, msg Message) { f(ctx, msg) }

// Info, Success and Error build messages stamped with the current time.
func Info(text string) Message    { return Message{Level: LevelInfo, Text: text, Time: time.Now()} }
func Success(text string) Message { return Message{Level: LevelSuccess, Text: text, Time: time.Now()} }
func Error(text string) Message   { return Message{Level: LevelError, Text: text, Time: time.Now()} }

// Fanout delivers each message to every sink in order.
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, msg Message) {
	for _, s := range f {
		if s != nil {
			s.Notify(ctx, msg)
		}
	}
}

// Discard drops every message.
var Discard Sink = SinkFunc(func(context.Context, Message) {})

// LogSink writes messages to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(ctx context.Context, msg Message) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if msg.Level == LevelError {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "notification", "notify_level", string(msg.Level), "text", msg.Text)
}
