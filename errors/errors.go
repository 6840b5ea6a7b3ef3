// Package errors 定义 arcompat 的错误码体系。
//
// 约定：
//   - 未找到、校验失败、行为否决等“预期结果”不通过 error 表达；
//   - 配置错误（未知连接名、描述符缺字段、非法标识符）与执行层故障才返回 error。
package errors

import (
	stdErrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误代码类型
type ErrorCode string

const (
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeDuplicate    ErrorCode = "DUPLICATE_ERROR"

	// 配置类错误：解析连接时立即失败
	ErrCodeConnectionNotFound ErrorCode = "CONNECTION_NOT_FOUND"
	ErrCodeConfiguration      ErrorCode = "CONFIGURATION_ERROR"

	// 执行层错误：由底层数据库驱动抛出
	ErrCodeDatabase    ErrorCode = "DATABASE_ERROR"
	ErrCodeTransaction ErrorCode = "TRANSACTION_ERROR"
	ErrCodePublish     ErrorCode = "PUBLISH_ERROR"
)

// IError 错误接口
type IError interface {
	error

	Code() ErrorCode
	Message() string
	Cause() error
	Details() map[string]any
	Stack() string

	WithContext(key string, value any) IError
}

// AppError 应用错误实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
	stack   string
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return &AppError{
		code:    code,
		message: message,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// Errorf 以格式化消息创建错误
func Errorf(code ErrorCode, format string, args ...any) IError {
	return &AppError{
		code:    code,
		message: fmt.Sprintf(format, args...),
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// WrapError 包装错误，err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}

	return &AppError{
		code:    code,
		message: message,
		cause:   err,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *AppError) Code() ErrorCode { return e.code }
func (e *AppError) Message() string { return e.message }
func (e *AppError) Cause() error    { return e.cause }
func (e *AppError) Stack() string   { return e.stack }

// Details 获取错误详情
func (e *AppError) Details() map[string]any {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	return e.details
}

// Is 同码的 AppError 视为同类错误；否则沿 cause 链匹配
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}

	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}

	if e.cause != nil {
		return stdErrors.Is(e.cause, target)
	}

	return false
}

// Unwrap 支持 errors.Unwrap / errors.As
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithContext 返回附加了一条详情的新错误
func (e *AppError) WithContext(key string, value any) IError {
	details := make(map[string]any, len(e.details)+1)
	for k, v := range e.details {
		details[k] = v
	}
	details[key] = value

	return &AppError{
		code:    e.code,
		message: e.message,
		cause:   e.cause,
		details: details,
		stack:   e.stack,
	}
}

// IsErrorCode 检查错误链中是否存在指定错误码的 AppError
func IsErrorCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code == code
	}

	return false
}

// GetErrorCode 获取错误码，非 AppError 返回 ErrCodeInternal
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}

	return ErrCodeInternal
}

func IsNotFound(err error) bool           { return IsErrorCode(err, ErrCodeNotFound) }
func IsConnectionNotFound(err error) bool { return IsErrorCode(err, ErrCodeConnectionNotFound) }
func IsConfiguration(err error) bool      { return IsErrorCode(err, ErrCodeConfiguration) }
func IsDatabase(err error) bool           { return IsErrorCode(err, ErrCodeDatabase) }

// captureStack 捕获堆栈信息
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var builder strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		builder.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))

		if !more {
			break
		}
	}

	return builder.String()
}
