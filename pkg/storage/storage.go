package storage

import (
	"context"
	"errors"
)

// Storage is an asynchronous key/value string store.
// Implementations can use Redis, MySQL, in-memory, or other backends.
type Storage interface {
	// GetItem returns the value stored under key.
	// Returns ErrNotFound if the key has never been set or was removed.
	GetItem(ctx context.Context, key string) (string, error)

	// SetItem stores value under key, overwriting any previous value (last write wins)
	SetItem(ctx context.Context, key, value string) error

	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(ctx context.Context, key string) error
}

// Error definitions
var (
	ErrNotFound = errors.New("storage: key not found")
)
