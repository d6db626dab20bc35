// Package kv provides the string key-value storage that holds credentials
// and playback snapshots between runs.
package kv

import "context"

// Store is a persistent string key-value store.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// SetAll writes every entry or none of them.
	SetAll(ctx context.Context, entries map[string]string) error
	// Remove deletes the given keys. Missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error
}
