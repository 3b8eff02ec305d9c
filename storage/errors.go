package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a document is not found.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned on a duplicate identifier at create time or
	// a lost optimistic-concurrency race during patch.
	ErrConflict = errors.New("storage conflict")

	// ErrSystemProperty is returned when client-supplied triples attempt
	// to set a system property on the document's primary subject.
	ErrSystemProperty = errors.New("cannot set system property")
)
