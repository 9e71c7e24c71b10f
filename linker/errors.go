package linker

import "errors"

var (
	// ErrMissingLibrary is the error returned when a library's needed_libs
	// entry names a library that was never registered with the Linker.
	ErrMissingLibrary = errors.New("linker: needed library not registered")
	// ErrUnresolvedSymbol is the error returned when a non-weak import has
	// no matching export anywhere in the registered libraries.
	ErrUnresolvedSymbol = errors.New("linker: unresolved symbol")
	// ErrDuplicateSymbol is the error returned when more than one library
	// exports the same name, or the same library name is registered twice.
	ErrDuplicateSymbol = errors.New("linker: duplicate symbol")
	// ErrDuplicateAdapter is the error returned when the same adapter name
	// is registered twice.
	ErrDuplicateAdapter = errors.New("linker: duplicate adapter")
	// ErrInternalValidation is the error returned when the assembled
	// component fails an internal consistency check the linker itself is
	// responsible for upholding, rather than a problem traceable to the
	// registered libraries.
	ErrInternalValidation = errors.New("linker: internal validation failure")
)
