package scoring

import "errors"

// Sentinel errors for score mutations.
var (
	ErrHintLimit = errors.New("hint limit reached")
	ErrFinished  = errors.New("game already finished")
)
