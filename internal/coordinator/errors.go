package coordinator

import "errors"

var (
	// ErrMatchNotFound is returned when a match document is missing.
	ErrMatchNotFound = errors.New("match not found")
	// ErrNotSearching aborts a pairing transaction when either request left the searching state.
	ErrNotSearching = errors.New("matchmaking request is not searching")
	// ErrNotParticipant is returned when a player acts on a match they are not in.
	ErrNotParticipant = errors.New("player is not a participant")
	// ErrInvalidTransition is returned for edges the match state machine does not have.
	ErrInvalidTransition = errors.New("invalid match transition")
	// ErrInvalidMove is returned for moves outside the board or with bad identifiers.
	ErrInvalidMove = errors.New("invalid move")
	// ErrInvalidArgument is returned for malformed ids, modes or puzzles.
	ErrInvalidArgument = errors.New("invalid argument")
)

// errUnchanged aborts a read-modify-write that has nothing to write.
var errUnchanged = errors.New("unchanged")
