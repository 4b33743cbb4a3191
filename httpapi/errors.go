package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonwraymond/todos/observe"
	"github.com/jonwraymond/todos/resilience"
	"github.com/jonwraymond/todos/task"
)

// AppError is an error with its HTTP shape. Err is kept for logs and never
// sent to the client.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithCause returns a copy of e carrying err.
func (e *AppError) WithCause(err error) *AppError {
	c := *e
	c.Err = err
	return &c
}

// WithMessage returns a copy of e with a different message.
func (e *AppError) WithMessage(msg string) *AppError {
	c := *e
	c.Message = msg
	return &c
}

var (
	ErrBadRequest   = &AppError{Code: "BAD_REQUEST", Message: "The request is invalid.", Status: http.StatusBadRequest}
	ErrInvalidJSON  = &AppError{Code: "INVALID_JSON", Message: "The request body is not valid JSON.", Status: http.StatusBadRequest}
	ErrUnauthorized = &AppError{Code: "UNAUTHORIZED", Message: "Unauthorized.", Status: http.StatusUnauthorized}
	ErrNotFound     = &AppError{Code: "NOT_FOUND", Message: "The task does not exist.", Status: http.StatusNotFound}
	ErrInternal     = &AppError{Code: "INTERNAL_ERROR", Message: "Something went wrong.", Status: http.StatusInternalServerError}
	ErrUnavailable  = &AppError{Code: "SERVICE_UNAVAILABLE", Message: "The service is busy, try again.", Status: http.StatusServiceUnavailable}
)

// FromError maps a service error to its HTTP shape.
func FromError(err error) *AppError {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, task.ErrNotFound):
		return ErrNotFound.WithCause(err)
	case errors.Is(err, task.ErrInvalidRequest):
		return ErrBadRequest.WithMessage(err.Error()).WithCause(err)
	case resilience.IsRejection(err):
		return ErrUnavailable.WithCause(err)
	default:
		return ErrInternal.WithCause(err)
	}
}

// WriteError writes err as a JSON error body. Server errors are logged with
// their cause.
func WriteError(ctx context.Context, w http.ResponseWriter, log observe.Logger, err error) {
	appErr := FromError(err)
	if appErr.Status >= http.StatusInternalServerError && log != nil {
		log.Error(ctx, "request failed", observe.Err(appErr.Err), observe.Field{Key: "code", Value: appErr.Code})
	}
	switch appErr.Status {
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", "Bearer")
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, appErr.Status, appErr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
