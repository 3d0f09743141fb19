// Package apperr provides the stage-tagged error type returned by the shorts
// pipeline. Every fatal pipeline outcome is an *AppError carrying a code, the
// stage that failed, and the underlying cause.
package apperr

import (
	"errors"
	"fmt"
)

// Error codes organized by category
const (
	// General errors (1000-1099)
	CodeUnknown       = 1000
	CodeInvalidParams = 1001
	CodeNotFound      = 1002
	CodeUnauthorized  = 1003
	CodeCancelled     = 1004

	// Provider errors (1100-1199); recovered via fallback and only logged
	CodeProviderFailure = 1100
	CodeCredentials     = 1101

	// Speech errors (1200-1299)
	CodeSynthesisFailure = 1200

	// Composition errors (1300-1399)
	CodeCompositionFailure = 1300
	CodeNoClips            = 1301

	// Encoding errors (1400-1499)
	CodeEncodingFailure = 1400

	// Publish errors (1500-1599)
	CodePublishFailure = 1500
)

// AppError represents a structured application error
type AppError struct {
	Code    int    `json:"code"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	prefix := fmt.Sprintf("[%d]", e.Code)
	if e.Stage != "" {
		prefix = fmt.Sprintf("[%d %s]", e.Code, e.Stage)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match AppErrors by code, so the predefined sentinels
// below can be used as targets. A category code (a multiple of 100) matches
// every code in its category: ErrNoClips is also an ErrCompositionFailure.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Code == e.Code {
		return true
	}
	return t.Code%100 == 0 && t.Code/100 == e.Code/100
}

// WithStage returns a copy of the error tagged with the stage that produced it.
func (e *AppError) WithStage(stage string) *AppError {
	cp := *e
	cp.Stage = stage
	return &cp
}

// New creates a new AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code int, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithDetail wraps an error with additional detail
func WrapWithDetail(code int, message string, detail string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Detail:  detail,
		Cause:   cause,
	}
}

// Is checks if the target error is an AppError with the specified code
func Is(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCode extracts error code from error, returns CodeUnknown if not AppError
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetStage extracts the failing stage, or "" when the error carries none.
func GetStage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Stage
	}
	return ""
}

// GetMessage extracts message from error
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// Kind returns the short machine-readable name of a code, used for run records
// and API responses.
func Kind(code int) string {
	switch code {
	case CodeInvalidParams:
		return "invalid_params"
	case CodeNotFound:
		return "not_found"
	case CodeUnauthorized:
		return "unauthorized"
	case CodeCancelled:
		return "cancelled"
	case CodeProviderFailure, CodeCredentials:
		return "provider_failure"
	case CodeSynthesisFailure:
		return "synthesis_failure"
	case CodeCompositionFailure, CodeNoClips:
		return "composition_failure"
	case CodeEncodingFailure:
		return "encoding_failure"
	case CodePublishFailure:
		return "publish_failure"
	default:
		return "unknown"
	}
}

// Predefined common errors
var (
	ErrInvalidParams = New(CodeInvalidParams, "invalid parameters")
	ErrNotFound      = New(CodeNotFound, "resource not found")
	ErrCancelled     = New(CodeCancelled, "run cancelled")

	ErrProviderFailure    = New(CodeProviderFailure, "provider failed")
	ErrSynthesisFailure   = New(CodeSynthesisFailure, "speech synthesis failed")
	ErrCompositionFailure = New(CodeCompositionFailure, "audio composition failed")
	ErrNoClips            = New(CodeNoClips, "no clips to compose")
	ErrEncodingFailure    = New(CodeEncodingFailure, "video encoding failed")
	ErrPublishFailure     = New(CodePublishFailure, "publish failed")
)
