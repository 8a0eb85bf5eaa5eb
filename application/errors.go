package application

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind 编排错误类型
type ErrorKind string

const (
	KindAgentTimeout          ErrorKind = "AgentTimeout"
	KindAgentFailure          ErrorKind = "AgentFailure"
	KindPlanConstructionError ErrorKind = "PlanConstructionError"
	KindSynthesisError        ErrorKind = "SynthesisError"
	KindNotFound              ErrorKind = "NotFound"
	KindInvalidRequest        ErrorKind = "InvalidRequest"
)

// OrchestrationError 工作流或步骤失败
type OrchestrationError struct {
	Kind    ErrorKind
	Message string
	Step    string
	Err     error

	// reported 是否已发出错误事件
	reported bool
}

func (e *OrchestrationError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s: step %s: %s", e.Kind, e.Step, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *OrchestrationError) Unwrap() error {
	return e.Err
}

// Info 面向调用方的错误视图，不含堆栈和原因链
func (e *OrchestrationError) Info() *ErrorInfo {
	return &ErrorInfo{Kind: e.Kind, Message: e.Message, Step: e.Step}
}

// NewOrchestrationError 创建编排错误
func NewOrchestrationError(kind ErrorKind, message string) *OrchestrationError {
	return &OrchestrationError{Kind: kind, Message: message}
}

// NewOrchestrationErrorf 创建格式化编排错误并包装原因
func NewOrchestrationErrorf(kind ErrorKind, cause error, format string, args ...interface{}) *OrchestrationError {
	return &OrchestrationError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// IsOrchestrationError 判断是否为编排错误
func IsOrchestrationError(err error) bool {
	var target *OrchestrationError
	return errors.As(err, &target)
}

// KindOf 获取编排错误类型，其他错误返回空
func KindOf(err error) ErrorKind {
	var target *OrchestrationError
	if errors.As(err, &target) {
		return target.Kind
	}
	return ""
}

// IsNotFound 判断是否为工作流不存在
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// ErrorInfo 失败响应中的错误体
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Step    string    `json:"step,omitempty"`
}

// stepError 智能体步骤错误分类，超过截止时间视为超时
func stepError(step string, err error) *OrchestrationError {
	kind := KindAgentFailure
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindAgentTimeout
	}
	e := NewOrchestrationErrorf(kind, err, "%v", err)
	e.Step = step
	return e
}
