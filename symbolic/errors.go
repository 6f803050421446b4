package symbolic

import "errors"

var (
	// ErrUnboundSymbol indicates a symbol with no compile slot or binding.
	ErrUnboundSymbol = errors.New("symbolic: unbound symbol")

	// ErrMissingComponent indicates a vector component that is absent.
	ErrMissingComponent = errors.New("symbolic: missing vector component")

	// ErrSyntax indicates expression text that does not parse.
	ErrSyntax = errors.New("symbolic: syntax error")

	// ErrUnknownFunction indicates a call to a function outside the table.
	ErrUnknownFunction = errors.New("symbolic: unknown function")
)
