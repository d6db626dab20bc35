// Package server exposes the playback session to a browser over HTTP:
// JSON endpoints for state and controls, and server-sent events for
// notifications and state changes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/rs/cors"

	rerrors "github.com/tessro/reprise/internal/errors"
	"github.com/tessro/reprise/internal/session"
)

// StreamState is the SSE stream carrying session state changes.
const StreamState = "state"

// Controller is the session surface driven over HTTP.
type Controller interface {
	State() session.State
	TogglePlayPause(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	PlayTrack(ctx context.Context, uri string) error
	PlayContext(ctx context.Context, contextURI string, offset int) error
	AddToQueue(ctx context.Context, uri string) error
	Disconnect(ctx context.Context) error
}

// Server serves the HTTP API.
type Server struct {
	ctrl    Controller
	events  *sse.Server
	logger  *slog.Logger
	handler http.Handler
}

// New builds the handler tree. Subscribers reach every stream on events
// through /events?stream=<name>.
func New(ctrl Controller, events *sse.Server, allowedOrigins []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	events.CreateStream(StreamState)

	s := &Server{ctrl: ctrl, events: events, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/player/toggle", s.command(ctrl.TogglePlayPause))
	mux.HandleFunc("POST /api/player/next", s.command(ctrl.Next))
	mux.HandleFunc("POST /api/player/previous", s.command(ctrl.Previous))
	mux.HandleFunc("POST /api/player/seek", s.handleSeek)
	mux.HandleFunc("POST /api/player/play", s.handlePlay)
	mux.HandleFunc("POST /api/player/queue", s.handleQueue)
	mux.HandleFunc("POST /api/player/disconnect", s.command(ctrl.Disconnect))
	mux.HandleFunc("GET /events", events.ServeHTTP)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
	})
	s.handler = c.Handler(mux)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// PublishState pushes st to subscribers of the state stream.
func (s *Server) PublishState(st session.State) {
	data, err := json.Marshal(NewStateView(st))
	if err != nil {
		s.logger.Error("failed to encode state", "error", err)
		return
	}
	s.events.Publish(StreamState, &sse.Event{Data: data})
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("http server listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Open SSE responses only end when their streams close.
	s.events.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NewStateView(s.ctrl.State()))
}

func (s *Server) command(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, r, fn(r.Context()))
	}
}

type seekRequest struct {
	PositionMS int64 `json:"position_ms"`
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if !decode(w, r, &req) {
		return
	}
	if req.PositionMS < 0 {
		writeError(w, http.StatusBadRequest, "position_ms must not be negative", "")
		return
	}
	s.respond(w, r, s.ctrl.Seek(r.Context(), time.Duration(req.PositionMS)*time.Millisecond))
}

type playRequest struct {
	URI        string `json:"uri"`
	ContextURI string `json:"context_uri"`
	Offset     int    `json:"offset"`
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if !decode(w, r, &req) {
		return
	}
	switch {
	case req.URI != "":
		s.respond(w, r, s.ctrl.PlayTrack(r.Context(), req.URI))
	case req.ContextURI != "":
		s.respond(w, r, s.ctrl.PlayContext(r.Context(), req.ContextURI, req.Offset))
	default:
		writeError(w, http.StatusBadRequest, "uri or context_uri is required", "")
	}
}

type queueRequest struct {
	URI string `json:"uri"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if !decode(w, r, &req) {
		return
	}
	if req.URI == "" {
		writeError(w, http.StatusBadRequest, "uri is required", "")
		return
	}
	s.respond(w, r, s.ctrl.AddToQueue(r.Context(), req.URI))
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, NewStateView(s.ctrl.State()))
		return
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error(), rerrors.GetSuggestion(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rerrors.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, rerrors.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, rerrors.ErrDeviceNotReady),
		errors.Is(err, rerrors.ErrDeviceInactive),
		errors.Is(err, session.ErrNothingLoaded):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return false
	}
	return true
}

type errorResponse struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, suggestion string) {
	writeJSON(w, status, errorResponse{Error: msg, Suggestion: suggestion})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
