package session

import "errors"

var (
	// ErrMatchMissing is terminal: the match document vanished or never existed.
	ErrMatchMissing = errors.New("match missing")
	// ErrNotPlaying is returned by local commands outside the playing phase.
	ErrNotPlaying = errors.New("not playing")
	// ErrNotParticipant is returned when the player is not in the match.
	ErrNotParticipant = errors.New("player is not in the match")
	// ErrStopped is returned by commands after Run returned.
	ErrStopped = errors.New("session stopped")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("session already running")
)
