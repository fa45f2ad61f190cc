package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies fatal pipeline failures. Query-rewrite and re-rank
// failures are deliberately absent: those stages recover locally and never
// abort the pipeline.
type ErrorCode string

const (
	ErrInvalidQuery     ErrorCode = "INVALID_QUERY"
	ErrEmbeddingFailed  ErrorCode = "EMBEDDING_FAILED"
	ErrSearchFailed     ErrorCode = "SEARCH_FAILED"
	ErrGenerationFailed ErrorCode = "GENERATION_FAILED"
)

// PipelineError is a fatal pipeline failure. The wrapped cause is kept for
// internal diagnostics and must never be echoed verbatim to end users.
type PipelineError struct {
	Code    ErrorCode
	Message string
	cause   error
}

func NewPipelineError(code ErrorCode, message string, cause error) *PipelineError {
	return &PipelineError{Code: code, Message: message, cause: cause}
}

func (e *PipelineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.cause
}

// CodeOf extracts the pipeline error code from err, or "" when err is not a
// PipelineError.
func CodeOf(err error) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
