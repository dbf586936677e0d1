package kvstore

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("kvstore: key not found")

// UpdateFunc receives the current value (found=false when absent) and
// returns the value to write back.
type UpdateFunc func(current string, found bool) (string, error)

// Store is a namespaced string key-value store. Update must be an atomic
// read-then-write of a single key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Scan(ctx context.Context, prefix string) ([]string, error)
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Close() error
}
