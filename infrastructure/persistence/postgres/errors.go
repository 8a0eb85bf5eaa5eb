package postgres

import (
	"errors"
	"fmt"
)

// PostgresError Postgres repository error
type PostgresError struct {
	message string
	cause   error
}

func (e *PostgresError) Error() string {
	return e.message
}

// Unwrap exposes the underlying cause
func (e *PostgresError) Unwrap() error {
	return e.cause
}

// NewPostgresErrorf creates a formatted Postgres error wrapping cause
func NewPostgresErrorf(cause error, format string, args ...interface{}) *PostgresError {
	return &PostgresError{message: fmt.Sprintf(format, args...), cause: cause}
}

// IsPostgresError reports whether err is a Postgres error
func IsPostgresError(err error) bool {
	var target *PostgresError
	return errors.As(err, &target)
}
