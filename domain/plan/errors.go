package plan

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind 请求类型未注册计划
	ErrUnknownKind = errors.New("unknown plan kind")
	// ErrInvalidPlan 计划校验失败
	ErrInvalidPlan = errors.New("invalid plan")
)

// PlanError 计划构建错误
type PlanError struct {
	message string
	cause   error
}

func (e *PlanError) Error() string {
	return e.message
}

// Unwrap 暴露哨兵原因
func (e *PlanError) Unwrap() error {
	return e.cause
}

// NewPlanError 创建计划错误
func NewPlanError(message string) *PlanError {
	return &PlanError{message: message, cause: ErrInvalidPlan}
}

// NewPlanErrorf 创建格式化计划错误并包装原因
func NewPlanErrorf(cause error, format string, args ...interface{}) *PlanError {
	return &PlanError{message: fmt.Sprintf(format, args...), cause: cause}
}

// IsPlanError 判断是否为计划错误
func IsPlanError(err error) bool {
	var target *PlanError
	return errors.As(err, &target)
}
