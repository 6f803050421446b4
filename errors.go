package goflux

import "errors"

var (
	// ErrStep indicates a grid or derivative step that is not a positive
	// finite number.
	ErrStep = errors.New("goflux: step must be positive and finite")

	// ErrBound indicates an integration bound that does not resolve to a
	// finite real: a u bound with free symbols, a v bound using symbols
	// other than u, or a bound that is NaN or infinite at some row.
	ErrBound = errors.New("goflux: unresolvable bound")
)
