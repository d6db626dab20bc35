package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// albumTrackPageLimit is the largest page the album tracks endpoint serves.
const albumTrackPageLimit = 50

// GetCurrentUser returns the current user's profile.
func (c *Client) GetCurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.Get(ctx, "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetDevices returns the user's available playback devices.
func (c *Client) GetDevices(ctx context.Context) ([]Device, error) {
	var resp DevicesResponse
	if err := c.Get(ctx, "/me/player/devices", &resp); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// GetPlaybackState returns the current playback state, or nil when nothing
// is playing on any device.
func (c *Client) GetPlaybackState(ctx context.Context) (*PlaybackState, error) {
	var state PlaybackState
	status, err := c.request(ctx, http.MethodGet, "/me/player", nil, &state)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &state, nil
}

// GetTrack returns full metadata for a track.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*Track, error) {
	var track Track
	if err := c.Get(ctx, "/tracks/"+url.PathEscape(trackID), &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// GetAlbumTracks returns every track of an album in album order.
func (c *Client) GetAlbumTracks(ctx context.Context, albumID string) ([]SimpleTrack, error) {
	var tracks []SimpleTrack
	offset := 0
	for {
		params := map[string]string{"limit": strconv.Itoa(albumTrackPageLimit)}
		if offset > 0 {
			params["offset"] = strconv.Itoa(offset)
		}

		var page AlbumTracksPage
		if err := c.Get(ctx, BuildURL("/albums/"+url.PathEscape(albumID)+"/tracks", params), &page); err != nil {
			return nil, err
		}
		tracks = append(tracks, page.Items...)
		offset += len(page.Items)

		if page.Next == "" || len(page.Items) == 0 || offset >= page.Total {
			return tracks, nil
		}
	}
}
