package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/gridduel/internal/adapters/store"
	"github.com/okian/gridduel/internal/coordinator"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrRouteNotFound    = errors.New("route not found")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrNoPuzzle         = errors.New("no puzzle given and no puzzle source configured")
	errHijack           = errors.New("response writer does not support hijacking")
)

func badRequest(err error) error { return fmt.Errorf("%w: %w", ErrBadRequest, err) }

// classify maps an error to a status and a stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, coordinator.ErrInvalidArgument),
		errors.Is(err, coordinator.ErrInvalidMove),
		errors.Is(err, coordinator.ErrNotParticipant),
		errors.Is(err, store.ErrUndeclaredKey):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, coordinator.ErrMatchNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, coordinator.ErrInvalidTransition),
		errors.Is(err, coordinator.ErrNotSearching),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, store.ErrUnavailable),
		errors.Is(err, store.ErrClosed),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
