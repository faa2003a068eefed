// Package metadata is a small key/value table for device-level state such as
// the sealed session credentials and the per-device key salt.
package metadata

import (
	"context"
)

// Repository returns (nil, nil) from Get for an absent key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// GetOrCreate returns the stored value, storing gen() first when the key
	// is absent. Concurrent callers all observe the first stored value.
	GetOrCreate(ctx context.Context, key string, gen func() []byte) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
}
