package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 工作流不存在
	ErrNotFound = errors.New("workflow not found")
	// ErrIllegalTransition 终态之后的状态变更
	ErrIllegalTransition = errors.New("illegal workflow transition")
	// ErrStepOverflow 完成步骤超过计划总数
	ErrStepOverflow = errors.New("steps completed exceeds total steps")
	// ErrDuplicate ID已注册
	ErrDuplicate = errors.New("workflow already registered")
)

// WorkflowError 工作流领域错误
type WorkflowError struct {
	message string
	cause   error
}

func (e *WorkflowError) Error() string {
	return e.message
}

// Unwrap 暴露哨兵原因
func (e *WorkflowError) Unwrap() error {
	return e.cause
}

// NewWorkflowError 创建工作流错误
func NewWorkflowError(message string) *WorkflowError {
	return &WorkflowError{message: message}
}

// NewWorkflowErrorf 创建格式化工作流错误并包装原因
func NewWorkflowErrorf(cause error, format string, args ...interface{}) *WorkflowError {
	return &WorkflowError{message: fmt.Sprintf(format, args...), cause: cause}
}

// IsWorkflowError 判断是否为工作流错误
func IsWorkflowError(err error) bool {
	var target *WorkflowError
	return errors.As(err, &target)
}

// IsNotFound 判断是否为工作流不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
