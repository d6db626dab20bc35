package core

import "strings"

// ContextKind identifies the collection a track is played from.
type ContextKind string

const (
	ContextAlbum    ContextKind = "album"
	ContextPlaylist ContextKind = "playlist"
	ContextArtist   ContextKind = "artist"
	ContextUnknown  ContextKind = "unknown"
)

// PlayContext is the album, playlist or artist surrounding the current track.
type PlayContext struct {
	Kind ContextKind `json:"kind"`
	URI  string      `json:"uri"`
}

// ParseContext derives a PlayContext from a Spotify URI such as
// "spotify:album:1DFixLWuPkv3KT3TnV35m3". It returns nil for an empty URI.
func ParseContext(uri string) *PlayContext {
	if uri == "" {
		return nil
	}
	return &PlayContext{Kind: KindOf(uri), URI: uri}
}

// KindOf returns the context kind encoded in a Spotify URI.
func KindOf(uri string) ContextKind {
	parts := strings.Split(uri, ":")
	if len(parts) < 3 || parts[0] != "spotify" {
		return ContextUnknown
	}
	// spotify:user:<name>:playlist:<id> is the legacy playlist form.
	if len(parts) == 5 && parts[1] == "user" && parts[3] == "playlist" {
		return ContextPlaylist
	}
	switch ContextKind(parts[1]) {
	case ContextAlbum, ContextPlaylist, ContextArtist:
		return ContextKind(parts[1])
	}
	return ContextUnknown
}

// URIID returns the trailing id of a Spotify URI.
func URIID(uri string) string {
	i := strings.LastIndexByte(uri, ':')
	if i < 0 {
		return uri
	}
	return uri[i+1:]
}
