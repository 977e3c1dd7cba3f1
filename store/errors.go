package store

import "github.com/cockroachdb/errors"

var (
	// ErrTableNotFound is returned when a table is missing and CreateAbsentTables is off.
	ErrTableNotFound = errors.New("lattice: table not found")

	// ErrUnsupportedOperation is returned for operations that are neither reads nor writes.
	ErrUnsupportedOperation = errors.New("lattice: unsupported operation")

	// ErrMalformedItem is returned when a stored cell attribute cannot be decoded.
	ErrMalformedItem = errors.New("lattice: malformed cell attribute")
)
