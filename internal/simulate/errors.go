package simulate

import "errors"

var (
	// ErrInvalidConfig is returned for unusable flags or bot lists.
	ErrInvalidConfig = errors.New("invalid simulator config")
	// ErrQueueCancelled is returned when a bot's matchmaking request is cancelled
	// by someone else while it is still searching.
	ErrQueueCancelled = errors.New("matchmaking request cancelled")
	// ErrNoResult is returned when a session ended without a final match state.
	ErrNoResult = errors.New("session ended without a result")
	// ErrInconsistent is returned when the two sides of a match disagree.
	ErrInconsistent = errors.New("inconsistent match results")
)
