package sqlite

import (
	"errors"
	"fmt"
)

// SQLiteError SQLite repository error
type SQLiteError struct {
	message string
	cause   error
}

func (e *SQLiteError) Error() string {
	return e.message
}

// Unwrap exposes the underlying cause
func (e *SQLiteError) Unwrap() error {
	return e.cause
}

// NewSQLiteErrorf creates a formatted SQLite error wrapping cause
func NewSQLiteErrorf(cause error, format string, args ...interface{}) *SQLiteError {
	return &SQLiteError{message: fmt.Sprintf(format, args...), cause: cause}
}

// IsSQLiteError reports whether err is a SQLite error
func IsSQLiteError(err error) bool {
	var target *SQLiteError
	return errors.As(err, &target)
}
