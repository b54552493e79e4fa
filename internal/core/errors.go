package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation     ErrorCategory = "validation"      // Invalid arguments
	ErrCatTransport      ErrorCategory = "transport"       // SSH/connection failure
	ErrCatTimeout        ErrorCategory = "timeout"         // Command exceeded its deadline
	ErrCatTool           ErrorCategory = "tool"            // Tool exited non-zero
	ErrCatParse          ErrorCategory = "parse"           // Output did not match the expected format
	ErrCatNotImplemented ErrorCategory = "not_implemented" // Placeholder tool
	ErrCatNotFound       ErrorCategory = "not_found"       // Unknown tool or process
	ErrCatInternal       ErrorCategory = "internal"        // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches on category and code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Terminal returns a copy that is no longer retryable.
func (e *DomainError) Terminal() *DomainError {
	cp := *e
	cp.Retryable = false
	return &cp
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrTransport creates a transport error. Transport errors are retried.
func ErrTransport(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTransport,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      CodeTimeout,
		Message:   message,
		Retryable: true,
	}
}

// ErrTool creates a tool error for a non-zero exit.
func ErrTool(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTool,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrParse creates a parse error.
func ErrParse(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatParse,
		Code:      CodeParseFailed,
		Message:   message,
		Retryable: false,
	}
}

// ErrNotImplemented creates the error returned by placeholder tools.
func ErrNotImplemented(tool string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotImplemented,
		Code:      CodeNotImplemented,
		Message:   fmt.Sprintf("%s is not implemented", tool),
		Retryable: false,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// ErrInternal creates an internal error.
func ErrInternal(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatInternal,
		Code:      CodeInternal,
		Message:   message,
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// AsDomainError converts any error into a DomainError, wrapping unknown
// errors as internal.
func AsDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr
	}
	return ErrInternal(err.Error()).WithCause(err)
}

// Predefined error codes
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeMissingArgument = "MISSING_ARGUMENT"
	CodeInvalidTarget   = "INVALID_TARGET"
	CodeInvalidConfig   = "INVALID_CONFIG"

	CodeConnectFailed = "CONNECT_FAILED"
	CodeSessionFailed = "SESSION_FAILED"
	CodeSpawnFailed   = "SPAWN_FAILED"

	CodeTimeout        = "TIMEOUT"
	CodeToolFailed     = "TOOL_FAILED"
	CodeToolNotFound   = "TOOL_NOT_FOUND"
	CodeNoSuchProcess  = "NO_SUCH_PROCESS"
	CodeAttachFailed   = "ATTACH_FAILED"
	CodeClassNotFound  = "CLASS_NOT_FOUND"
	CodeRetryExhausted = "RETRY_EXHAUSTED"

	CodeParseFailed    = "PARSE_FAILED"
	CodeNotImplemented = "NOT_IMPLEMENTED"
	CodeNoProcess      = "NO_JAVA_PROCESS"
	CodeInternal       = "INTERNAL"
)
