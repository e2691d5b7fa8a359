package store

import "errors"

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
	// ErrInvalidPath is returned for empty or malformed paths.
	ErrInvalidPath = errors.New("invalid store path")
	// ErrNotDocument is returned when a backend cannot address a path as a single document.
	ErrNotDocument = errors.New("path does not address a document")
)
