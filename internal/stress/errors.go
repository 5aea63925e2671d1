package stress

import "errors"

var (
	ErrInvariantViolated = errors.New("shared handle invariant violated")
	ErrInterrupted       = errors.New("stress run interrupted")
)
