package synth

import "errors"

var (
	// ErrColumnNotFound is returned when a requested column name is not in
	// the schema.
	ErrColumnNotFound = errors.New("column not found")
	// ErrInvalidSchema is returned for schemas or column descriptors that
	// cannot drive generation (bad shapes, empty integer ranges, malformed
	// properties, duplicate names).
	ErrInvalidSchema = errors.New("invalid schema")
	// ErrInvalidArgument is returned for bad call parameters such as a
	// negative row count or inverted session-length bounds.
	ErrInvalidArgument = errors.New("invalid argument")
)
