// Package store defines the shared-store contract the coordinator runs on:
// point reads and writes, atomic multi-key transactions, change
// subscriptions and leases with a last-will value.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// KV is a key with its stored value.
type KV struct {
	Key   string
	Value []byte
}

// Change is pushed to watchers on every write under their prefix.
type Change struct {
	Key     string `json:"key"`
	Value   []byte `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Tx is the view a transaction function gets. Only keys declared to
// Transact may be read or written.
type Tx interface {
	// Get returns ErrNotFound for a missing key.
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// Store is the storage collaborator of the coordinator.
type Store interface {
	// Get returns ErrNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete is idempotent.
	Delete(ctx context.Context, key string) error
	// List returns every key under prefix in key order.
	List(ctx context.Context, prefix string) ([]KV, error)

	// Transact runs fn over a consistent snapshot of keys and commits its
	// writes atomically. fn may run more than once under contention; an
	// error returned by fn aborts the transaction and is returned as is.
	Transact(ctx context.Context, keys []string, fn func(Tx) error) error

	// Watch pushes every subsequent write under prefix, in commit order.
	// The channel is closed when ctx ends or the store closes. A backend
	// that may have dropped changes closes it too; callers resync with a
	// fresh read.
	Watch(ctx context.Context, prefix string) (<-chan Change, error)

	// Lease writes value and arms a last-will: unless Lease is called again
	// within ttl, the store itself writes will to key. Calling Lease again
	// renews it.
	Lease(ctx context.Context, key string, value, will []byte, ttl time.Duration) error
	// Release disarms the lease and writes a final value.
	Release(ctx context.Context, key string, value []byte) error
	// Revoke fires the lease's will immediately, as if its owner vanished.
	// It is a no-op when no lease is held.
	Revoke(ctx context.Context, key string) error

	Close() error
}

// Key joins path segments with '/'.
func Key(parts ...string) string { return strings.Join(parts, "/") }

// Update is a single-key atomic read-modify-write. fn receives the current
// value (nil and false when missing) and returns the value to store.
func Update(ctx context.Context, s Store, key string, fn func(cur []byte, exists bool) ([]byte, error)) error {
	return s.Transact(ctx, []string{key}, func(tx Tx) error {
		cur, err := tx.Get(key)
		exists := true
		if errors.Is(err, ErrNotFound) {
			exists = false
		} else if err != nil {
			return err
		}
		next, err := fn(cur, exists)
		if err != nil {
			return err
		}
		return tx.Put(key, next)
	})
}

// GetJSON reads key and decodes it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes v and writes it to key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, raw)
}

// UpdateJSON atomically decodes key into a T, lets fn mutate it and writes it
// back. A missing key yields ErrNotFound unless create is non-nil, in which
// case create supplies the starting value.
func UpdateJSON[T any](ctx context.Context, s Store, key string, create func() *T, fn func(*T) error) error {
	return Update(ctx, s, key, func(cur []byte, exists bool) ([]byte, error) {
		var v *T
		switch {
		case exists:
			v = new(T)
			if err := json.Unmarshal(cur, v); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
		case create != nil:
			v = create()
		default:
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		if err := fn(v); err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
}

// DecodeJSON decodes a value from a Tx.
func DecodeJSON(tx Tx, key string, v any) error {
	raw, err := tx.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// EncodeJSON encodes v into a Tx write.
func EncodeJSON(tx Tx, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.Put(key, raw)
}
