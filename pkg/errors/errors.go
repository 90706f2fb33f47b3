package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches AppErrors by code so wrapped copies compare equal to the sentinel.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e != nil && other != nil && e.Code == other.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// The stable error kinds produced by the registration core. Status codes are
// advisory; transport layers decide the final user-facing shape.
var (
	ErrConflict = &AppError{
		Code:       "USERNAME_CONFLICT",
		Message:    "Username is already claimed",
		StatusCode: http.StatusConflict,
	}

	ErrNotFound = &AppError{
		Code:       "ACCOUNT_NOT_FOUND",
		Message:    "Account not found",
		StatusCode: http.StatusNotFound,
	}

	ErrInvalidTransition = &AppError{
		Code:       "INVALID_TRANSITION",
		Message:    "Status change not permitted from current state",
		StatusCode: http.StatusConflict,
	}

	ErrCodeExpired = &AppError{
		Code:       "CODE_EXPIRED",
		Message:    "Verification code has expired",
		StatusCode: http.StatusGone,
	}

	ErrCodeMismatch = &AppError{
		Code:       "CODE_MISMATCH",
		Message:    "Verification code does not match",
		StatusCode: http.StatusBadRequest,
	}

	ErrCodeAttemptsExhausted = &AppError{
		Code:       "CODE_ATTEMPTS_EXHAUSTED",
		Message:    "Too many failed verification attempts",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrStorageIO = &AppError{
		Code:       "STORAGE_IO_FAILURE",
		Message:    "Storage operation failed",
		StatusCode: http.StatusInternalServerError,
	}

	ErrSyncFailure = &AppError{
		Code:       "SYNC_FAILURE",
		Message:    "Legacy store synchronization failed",
		StatusCode: http.StatusBadGateway,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       ErrInternalServer.Code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// WrapStorage tags a backend I/O failure with the storage error kind.
func WrapStorage(err error) *AppError {
	return ErrStorageIO.WithInternal(err)
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation failures with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}
