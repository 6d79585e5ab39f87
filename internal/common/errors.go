package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// LLM and pipeline errors. The LLM service only reports free text, so
// these are attached by llm.Classify after inspecting the message.
var (
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrAPIKey           = errors.New("api key rejected")
	ErrRateLimited      = errors.New("rate limited")
	ErrNoKeyAvailable   = errors.New("no api key available in current window")
	ErrInsufficientText = errors.New("insufficient text")
	ErrMalformedJSON    = errors.New("malformed json")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
