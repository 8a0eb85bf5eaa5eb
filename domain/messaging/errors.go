package messaging

import "fmt"

// BusError 消息总线错误
type BusError struct {
	message string
}

func (e *BusError) Error() string {
	return e.message
}

// NewBusError 创建总线错误
func NewBusError(message string) *BusError {
	return &BusError{message: message}
}

// NewBusErrorf 创建格式化总线错误
func NewBusErrorf(format string, args ...interface{}) *BusError {
	return &BusError{message: fmt.Sprintf(format, args...)}
}

// IsBusError 判断是否为总线错误
func IsBusError(err error) bool {
	_, ok := err.(*BusError)
	return ok
}
