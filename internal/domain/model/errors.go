package model

import "errors"

// ErrInvalidMatch is returned by Match.Validate.
var ErrInvalidMatch = errors.New("invalid match")
