package pkg

import (
	"errors"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Origin  error
}

func (e *AppError) Error() string {
	if e.Origin != nil {
		return e.Message + ": " + e.Origin.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Origin }

const (
	ErrInvalidInput = "INVALID_INPUT"
	ErrUnauthorized = "UNAUTHORIZED"
	ErrForbidden    = "FORBIDDEN"
	ErrNotFound     = "NOT_FOUND"
	ErrDuplicate    = "DUPLICATE"
	ErrInternal     = "INTERNAL"
)

func NewAppError(code, message string, origin error) *AppError {
	return &AppError{Code: code, Message: message, Origin: origin}
}

func InvalidInput(message string) *AppError {
	return &AppError{Code: ErrInvalidInput, Message: message}
}

func Unauthorized(message string) *AppError {
	return &AppError{Code: ErrUnauthorized, Message: message}
}

func Forbidden(message string) *AppError {
	return &AppError{Code: ErrForbidden, Message: message}
}

func NotFound(message string) *AppError {
	return &AppError{Code: ErrNotFound, Message: message}
}

func Duplicate(message string) *AppError {
	return &AppError{Code: ErrDuplicate, Message: message}
}

// AsAppError 取出错误链上的 AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func IsErrorCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// HTTPStatus 错误码 -> HTTP 状态码
func HTTPStatus(code string) int {
	switch code {
	case ErrInvalidInput:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrDuplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
