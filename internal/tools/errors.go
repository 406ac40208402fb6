package tools

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies a tool dispatch failure for retry logic and for
// the caller's decision about how to report it upstream.
type ErrorType string

const (
	ErrorNestingDepthExceeded ErrorType = "nesting_depth_exceeded"
	ErrorNotFound             ErrorType = "not_found"
	ErrorInvalidParameters    ErrorType = "invalid_parameters"
	ErrorTimeout              ErrorType = "timeout"
	ErrorRateLimited          ErrorType = "rate_limited"
	ErrorExecutionFailed      ErrorType = "execution_failed"
	ErrorSafetyBlocked        ErrorType = "safety_blocked"
	ErrorNotAuthorized        ErrorType = "not_authorized"
	ErrorExternalService      ErrorType = "external_service"
	ErrorSandbox              ErrorType = "sandbox"
)

// Permanent reports whether the retry wrapper should give up immediately
// on an error of this type rather than retry it.
func (t ErrorType) Permanent() bool {
	switch t {
	case ErrorInvalidParameters, ErrorExecutionFailed, ErrorNotAuthorized:
		return true
	default:
		return false
	}
}

// Transient reports whether the retry wrapper should retry an error of
// this type with exponential backoff.
func (t ErrorType) Transient() bool {
	switch t {
	case ErrorRateLimited, ErrorExternalService, ErrorTimeout, ErrorSandbox:
		return true
	default:
		return false
	}
}

// Error is the structured error surfaced by tool dispatch. Step 5 of the
// executor pipeline wraps every failure into one of these before it
// reaches the retry wrapper or the caller.
type Error struct {
	Type          ErrorType
	ToolName      string
	ToolCallID    string
	Message       string
	Cause         error
	Attempts      int
	RetryAfter    *DurationHint
}

// DurationHint carries a server-suggested retry delay (e.g. from a
// RateLimited response's Retry-After header), preferred over the
// computed backoff when present.
type DurationHint struct {
	Milliseconds int64
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[tool:%s]", e.Type))
	if e.ToolName != "" {
		parts = append(parts, e.ToolName)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if e.Attempts > 1 {
		parts = append(parts, fmt.Sprintf("(attempts=%d)", e.Attempts))
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError wraps cause into a tool Error, inferring its type when t is
// the zero value by falling back to string-matching against the cause's
// message — the classifier of last resort for errors that cross a
// library boundary without a typed code already attached.
func NewError(toolName string, t ErrorType, cause error) *Error {
	if t == "" {
		t = classifyError(cause)
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Type: t, ToolName: toolName, Cause: cause, Message: msg, Attempts: 1}
}

func (e *Error) WithToolCallID(id string) *Error {
	e.ToolCallID = id
	return e
}

func (e *Error) WithAttempts(n int) *Error {
	e.Attempts = n
	return e
}

func (e *Error) WithRetryAfter(ms int64) *Error {
	e.RetryAfter = &DurationHint{Milliseconds: ms}
	return e
}

// classifyError is the fallback classifier for causes that don't already
// carry a typed ErrorType — used only when a tool implementation returns
// a plain error rather than constructing an *Error itself.
func classifyError(cause error) ErrorType {
	if cause == nil {
		return ErrorExecutionFailed
	}
	s := strings.ToLower(cause.Error())
	switch {
	case strings.Contains(s, "timeout") || strings.Contains(s, "deadline exceeded"):
		return ErrorTimeout
	case strings.Contains(s, "rate limit") || strings.Contains(s, "429") || strings.Contains(s, "too many requests"):
		return ErrorRateLimited
	case strings.Contains(s, "not found") || strings.Contains(s, "no such"):
		return ErrorNotFound
	case strings.Contains(s, "unauthorized") || strings.Contains(s, "forbidden") || strings.Contains(s, "not authorized"):
		return ErrorNotAuthorized
	case strings.Contains(s, "invalid") || strings.Contains(s, "validation") || strings.Contains(s, "missing required"):
		return ErrorInvalidParameters
	case strings.Contains(s, "connection") || strings.Contains(s, "network") || strings.Contains(s, "dns") || strings.Contains(s, "unreachable"):
		return ErrorExternalService
	default:
		return ErrorExecutionFailed
	}
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
