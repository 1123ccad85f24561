package domain

import "errors"

var (
	// ErrCompilation means a filter could not be turned into a predicate.
	ErrCompilation = errors.New("filter compilation failed")
	// ErrUnknownField is wrapped in ErrCompilation when a field is not in the schema.
	ErrUnknownField = errors.New("unknown filter field")
	// ErrBackend means the record store rejected or failed the query.
	// Its message is safe to return to callers; it never includes SQL.
	ErrBackend = errors.New("database error: failed to execute query")
	// ErrEmptyRawQuery is returned for a blank raw query.
	ErrEmptyRawQuery = errors.New("raw query is empty")
)
