package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	rerrors "github.com/tessro/reprise/internal/errors"
	"github.com/tessro/reprise/internal/server"
)

// daemonClient talks to a running `reprise serve`.
type daemonClient struct {
	baseURL string
	http    *http.Client
}

func newDaemonClient(addr string) *daemonClient {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &daemonClient{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *daemonClient) State(ctx context.Context) (*server.StateView, error) {
	var st server.StateView
	if err := c.do(ctx, http.MethodGet, "/api/state", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Command posts body to /api/player/<name> and returns the resulting state.
func (c *daemonClient) Command(ctx context.Context, name string, body any) (*server.StateView, error) {
	var st server.StateView
	if err := c.do(ctx, http.MethodPost, "/api/player/"+name, body, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *daemonClient) do(ctx context.Context, method, path string, body, result any) error {
	var r io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	} else if method == http.MethodPost {
		r = strings.NewReader("{}")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return rerrors.WithSuggestion(
			fmt.Errorf("reprise is not reachable at %s: %w", c.baseURL, err),
			"Start it with 'reprise serve'",
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error      string `json:"error"`
			Suggestion string `json:"suggestion"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		err := fmt.Errorf("%s", e.Error)
		if e.Suggestion != "" {
			return rerrors.WithSuggestion(err, e.Suggestion)
		}
		return err
	}
	return json.NewDecoder(resp.Body).Decode(result)
}
