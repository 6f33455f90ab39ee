// Package metadata stores flat key/value settings (user_data collection):
// auth token, last-sync timestamp and similar. Last write wins, no history.
package metadata

import "context"

type Repository interface {
	// Get returns the raw value for key, or (nil, nil) when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	All(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
