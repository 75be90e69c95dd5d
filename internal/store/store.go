// Package store persists each user's quiz history and stats in two named
// slots on top of a plain key-value backend.
package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// KV is a byte-oriented key-value backend. Get returns ErrNotFound for a key
// that was never set.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
