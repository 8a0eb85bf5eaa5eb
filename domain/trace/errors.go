package trace

import "fmt"

// TraceError 追踪日志错误
type TraceError struct {
	message string
}

func (e *TraceError) Error() string {
	return e.message
}

// NewTraceError 创建追踪错误
func NewTraceError(message string) *TraceError {
	return &TraceError{message: message}
}

// NewTraceErrorf 创建格式化追踪错误
func NewTraceErrorf(format string, args ...interface{}) *TraceError {
	return &TraceError{message: fmt.Sprintf(format, args...)}
}

// IsTraceError 判断是否为追踪错误
func IsTraceError(err error) bool {
	_, ok := err.(*TraceError)
	return ok
}
