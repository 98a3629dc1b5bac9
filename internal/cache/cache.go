// Package cache provides the key-value store behind the verification cache.
//
// Values are opaque bytes; GetValue and SetValue encode structured values
// with msgpack. Three backends are available: an embedded BadgerDB
// directory for single-machine use, a PostgreSQL table for caches shared
// between machines, and an in-memory map for tests.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("cache: not found")

// Store is a flat key-value store. Implementations are safe for concurrent
// use.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the store.
	Close() error
}

// Key joins parts with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// GetValue reads key and decodes it into a T.
func GetValue[T any](ctx context.Context, s Store, key string) (T, error) {
	var v T
	data, err := s.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	return v, nil
}

// SetValue encodes v and stores it under key.
func SetValue[T any](ctx context.Context, s Store, key string, v T) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
