package auth

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"time"
)

// CallbackResult contains the result of the OAuth callback.
type CallbackResult struct {
	Code  string
	State string
	Error string
}

// CallbackServer receives the OAuth redirect on the address named by the
// redirect URI.
type CallbackServer struct {
	server   *http.Server
	listener net.Listener
	state    string
	result   chan CallbackResult
}

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head><title>reprise</title></head>
<body>
{{if .}}<h1>Authentication failed</h1>
<p>{{.}}</p>{{else}}<h1>Connected to Spotify</h1>
<p>You can close this window and return to the terminal.</p>{{end}}
</body>
</html>`))

// NewCallbackServer listens on the host and port of redirectURI and accepts a
// single callback carrying expectedState.
func NewCallbackServer(redirectURI, expectedState string) (*CallbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect uri: %w", err)
	}

	listener, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", u.Host, err)
	}

	cs := &CallbackServer{
		listener: listener,
		state:    expectedState,
		result:   make(chan CallbackResult, 1),
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, cs.handleCallback)

	cs.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return cs, nil
}

// Start begins serving HTTP requests in the background.
func (cs *CallbackServer) Start() {
	go func() {
		_ = cs.server.Serve(cs.listener)
	}()
}

// Wait blocks until a callback is received or ctx is done.
func (cs *CallbackServer) Wait(ctx context.Context) (CallbackResult, error) {
	select {
	case result := <-cs.result:
		return result, nil
	case <-ctx.Done():
		return CallbackResult{}, ctx.Err()
	}
}

// Shutdown gracefully shuts down the server.
func (cs *CallbackServer) Shutdown(ctx context.Context) error {
	return cs.server.Shutdown(ctx)
}

// Addr returns the address the server is listening on.
func (cs *CallbackServer) Addr() string {
	return cs.listener.Addr().String()
}

func (cs *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result := CallbackResult{
		Code:  query.Get("code"),
		State: query.Get("state"),
		Error: query.Get("error"),
	}

	if result.Error == "" && result.State != cs.state {
		// Forged or stale redirects never reach Wait.
		w.WriteHeader(http.StatusBadRequest)
		_ = callbackPage.Execute(w, "state mismatch")
		return
	}

	// Non-blocking in case of duplicate callbacks
	select {
	case cs.result <- result:
	default:
	}

	if result.Error != "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = callbackPage.Execute(w, result.Error)
		return
	}
	_ = callbackPage.Execute(w, "")
}
