package levels

import (
	"errors"
)

var (
	// ErrDataUnavailable marks a date/instrument with no usable input
	// rows. Callers degrade to a partial result instead of failing.
	ErrDataUnavailable = errors.New("no market data available")

	// ErrComputation marks a degenerate session (for example a zero
	// price range) that cannot produce a volume profile.
	ErrComputation = errors.New("profile computation failed")
)
