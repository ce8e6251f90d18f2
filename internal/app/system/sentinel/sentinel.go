// Package sentinel holds the error values shared across stores, the
// lifecycle and the HTTP layer. Wrap them with %w and test with errors.Is.
package sentinel

import "errors"

var (
	// ErrNotFound means the addressed document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPreconditionFailed means a conditional update found a different
	// version than the one it was based on.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrExternalLookup means the fiscal lookup service could not answer.
	ErrExternalLookup = errors.New("external lookup failed")
)
