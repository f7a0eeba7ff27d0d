package mapper

import "errors"

var (
	// ErrNotFound reports that no row matched the requested key(s).
	ErrNotFound = errors.New("record not found")
	// ErrInvalidModel reports a value that cannot be mapped to a table.
	ErrInvalidModel = errors.New("invalid model")
	// ErrInsufficientData reports an insert with no set columns.
	ErrInsufficientData = errors.New("insufficient data for insert")
	// ErrMissingKey reports a destroy without every primary key value.
	ErrMissingKey = errors.New("primary key value missing")
)

// ErrorKind classifies err for the HTTP layer.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidModel), errors.Is(err, ErrInsufficientData), errors.Is(err, ErrMissingKey):
		return "validation"
	default:
		return "database"
	}
}
