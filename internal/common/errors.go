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

// Pipeline failure taxonomy. Every stage of the ingestion and query paths
// surfaces exactly one of these; the orchestrator maps each to a single
// user-facing message and logs the full cause.
var (
	ErrUnsupportedKind        = errors.New("unsupported file kind")
	ErrQualityTooLow          = errors.New("image quality below threshold")
	ErrExtractionFailed       = errors.New("text extraction failed")
	ErrTransformerUnavailable = errors.New("transformer unavailable")
	ErrInvalidShape           = errors.New("invalid record shape")
	ErrPersistenceFailed      = errors.New("persistence failed")
	ErrNotAQuery              = errors.New("not a query")
	ErrMalformedQuery         = errors.New("malformed query")
)

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
