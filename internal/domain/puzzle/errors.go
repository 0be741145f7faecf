package puzzle

import "errors"

// Validation errors.
var (
	ErrLength        = errors.New("puzzle strings must be 81 characters")
	ErrClueDigit     = errors.New("clue characters must be 0-9")
	ErrSolutionDigit = errors.New("solution characters must be 1-9")
	ErrMismatch      = errors.New("clue digit disagrees with solution")
)

// Board errors.
var (
	ErrOutOfRange = errors.New("cell out of range")
	ErrClueCell   = errors.New("cell is a clue")
	ErrLocked     = errors.New("cell already solved")
	ErrBadValue   = errors.New("value must be 0-9")
)

// ErrNoPuzzles is returned by sources with nothing to offer.
var ErrNoPuzzles = errors.New("no puzzles available")
