package bucket

import (
	"context"
	"errors"
)

// ErrInvalidEntry indicates a stored entry could not be decoded.
var ErrInvalidEntry = errors.New("invalid cache entry")

// Store is a collection of named buckets.
//
// Implementations must make Open idempotent: opening an existing bucket
// returns access to its existing entries, and two handles to the same name
// observe each other's writes. A Get miss is (nil, nil), not an error.
type Store interface {
	// Open creates the named bucket if it does not exist yet.
	Open(ctx context.Context, name string) error

	// Get retrieves the entry stored under key in the named bucket.
	// Returns (nil, nil) on miss.
	Get(ctx context.Context, name, key string) (*Entry, error)

	// Put stores an entry under key, replacing any prior entry for that key.
	Put(ctx context.Context, name, key string, entry *Entry) error

	// DeleteExcept removes every bucket whose name is not in keep.
	// Keep names that do not exist yet are not an error.
	DeleteExcept(ctx context.Context, keep map[string]struct{}) error

	// Names enumerates the buckets that currently exist.
	Names(ctx context.Context) ([]string, error)
}
