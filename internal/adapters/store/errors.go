package store

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound = errors.New("key not found")
	// ErrConflict means optimistic retries were exhausted.
	ErrConflict = errors.New("transaction conflict")
	// ErrUnavailable wraps transient backend failures.
	ErrUnavailable   = errors.New("store unavailable")
	ErrClosed        = errors.New("store closed")
	ErrUndeclaredKey = errors.New("key not declared in transaction")
)

// Transient reports whether err is worth a reconnect and retry.
func Transient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrConflict)
}
