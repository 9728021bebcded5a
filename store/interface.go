package store

import (
	"context"
	"errors"
)

// KV is the durable key/value surface a cart persists to.
// Values are replaced whole; there are no partial writes.
//
// Get returns ErrNotFound when the key is absent.
// Delete of an absent key is not an error.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error

	Close() error
}

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("key not found")
