package registry

import "errors"

// ErrUnknownChannel is returned for empty names and names outside the catalog.
// Callers treat it as an invalid argument.
var ErrUnknownChannel = errors.New("unknown channel")

var (
	ErrEmptyCatalog     = errors.New("channel catalog is empty")
	ErrDuplicateChannel = errors.New("duplicate channel name")
)
