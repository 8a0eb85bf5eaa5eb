package mysql

import (
	"errors"
	"fmt"
)

// MySQLError MySQL错误
type MySQLError struct {
	message string
	cause   error
}

func (e *MySQLError) Error() string {
	return e.message
}

// Unwrap 暴露底层原因
func (e *MySQLError) Unwrap() error {
	return e.cause
}

// NewMySQLError 创建MySQL错误
func NewMySQLError(message string) *MySQLError {
	return &MySQLError{message: message}
}

// NewMySQLErrorf 创建格式化MySQL错误并包装原因
func NewMySQLErrorf(cause error, format string, args ...interface{}) *MySQLError {
	return &MySQLError{message: fmt.Sprintf(format, args...), cause: cause}
}

// IsMySQLError 判断是否为MySQL错误
func IsMySQLError(err error) bool {
	var target *MySQLError
	return errors.As(err, &target)
}
