package agent

import (
	"errors"
	"fmt"
)

// Error 智能体上报的失败
type Error struct {
	agentID string
	message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("agent %s: %s", e.agentID, e.message)
}

// Unwrap 暴露底层原因，例如 context.DeadlineExceeded
func (e *Error) Unwrap() error {
	return e.cause
}

// AgentID 失败的智能体
func (e *Error) AgentID() string {
	return e.agentID
}

// NewError 创建智能体错误
func NewError(agentID, message string) *Error {
	return &Error{agentID: agentID, message: message}
}

// NewErrorf 创建格式化智能体错误并包装原因
func NewErrorf(agentID string, cause error, format string, args ...interface{}) *Error {
	return &Error{agentID: agentID, message: fmt.Sprintf(format, args...), cause: cause}
}

// IsAgentError 判断是否为智能体错误
func IsAgentError(err error) bool {
	var target *Error
	return errors.As(err, &target)
}
