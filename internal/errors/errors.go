// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation_error"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeError        ErrorType = "processing_error"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeUnavailable  ErrorType = "unavailable"
)

// Sentinel errors of the timeline core. They are wrapped in an AppError so
// callers can both match them with errors.Is and map them to a status.
var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrBranchNotFound = errors.New("branch not found")
	ErrInvalidMonth   = errors.New("month must be between 1 and 12")
	ErrClipNotFound   = errors.New("narration clip not found")
	ErrNoProvider     = errors.New("no commentary provider configured")
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType, originalError),
	}
}

func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

func NewUnauthorizedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUnauthorized, message, originalError)
}

func NewUnavailableError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUnavailable, message, originalError)
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeError for plain errors.
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ErrorTypeError
}

// CodeOf returns the user facing code carried by err.
func CodeOf(err error) string {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Code
	}
	return "PROCESSING_ERROR"
}

func IsValidationError(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeValidation
}

func IsNotFoundError(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeNotFound
}

func IsUnauthorizedError(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeUnauthorized
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType, cause error) string {
	switch {
	case errors.Is(cause, ErrUnknownEvent):
		return "UNKNOWN_EVENT"
	case errors.Is(cause, ErrBranchNotFound):
		return "BRANCH_NOT_FOUND"
	case errors.Is(cause, ErrInvalidMonth):
		return "INVALID_MONTH"
	case errors.Is(cause, ErrClipNotFound):
		return "CLIP_NOT_FOUND"
	}

	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeUnauthorized:
		return "UNAUTHORIZED"
	case ErrorTypeUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
