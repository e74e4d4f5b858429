package task

import "errors"

// ErrFilterInvalid is returned by setters given out-of-range values and by
// Validate for a stored window whose end precedes its start.
var ErrFilterInvalid = errors.New("task: invalid filter")
