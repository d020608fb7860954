package http

import (
	"fmt"
	"net/http"
)

// Error codes emitted by the API.
const (
	CodeBadRequest     = "ERR_BAD_REQUEST"
	CodeNotFound       = "ERR_NOT_FOUND"
	CodeTooLarge       = "ERR_TOO_LARGE"
	CodeUnprocessable  = "ERR_UNPROCESSABLE"
	CodeNotImplemented = "ERR_NOT_IMPLEMENTED"
	CodeTimeout        = "ERR_TIMEOUT"
	CodeInternal       = "ERR_INTERNAL"
)

// AppError is a use case failure translated to a response status.
// Err is kept for logging and never serialized.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

// WithError attaches the cause and returns e.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func BadRequestError(message string) *AppError {
	return NewAppError(CodeBadRequest, "", message, http.StatusBadRequest)
}

func NotFoundError(message string) *AppError {
	return NewAppError(CodeNotFound, "", message, http.StatusNotFound)
}

// TooLargeError rejects an upload over the body limit.
func TooLargeError(message string) *AppError {
	return NewAppError(CodeTooLarge, "", message, http.StatusRequestEntityTooLarge)
}

// UnprocessableError reports a well-formed request whose data cannot
// produce a result, e.g. two series with too little common history.
func UnprocessableError(message string) *AppError {
	return NewAppError(CodeUnprocessable, "", message, http.StatusUnprocessableEntity)
}

// NotImplementedError reports an operation the configured backend lacks.
func NotImplementedError(message string) *AppError {
	return NewAppError(CodeNotImplemented, "", message, http.StatusNotImplemented)
}

func TimeoutError(message string) *AppError {
	return NewAppError(CodeTimeout, "", message, http.StatusGatewayTimeout)
}

func InternalError(message string) *AppError {
	return NewAppError(CodeInternal, "", message, http.StatusInternalServerError)
}
