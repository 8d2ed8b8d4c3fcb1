// Package errs provides structured error types and helpers for tessera data sources.
package errs

import (
	"sort"
	"strconv"
	"strings"
)

// Code identifies a data-source error category.
type Code string

const (
	// CodeConfig indicates an invalid or unresolvable data-source configuration.
	CodeConfig Code = "config_invalid"
	// CodeNetwork indicates a network transport failure.
	CodeNetwork Code = "network"
	// CodeTimeout indicates a request that exceeded its deadline or was cancelled.
	CodeTimeout Code = "timeout"
	// CodeUnauthorized indicates a rejected credential (HTTP 401).
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden indicates an authenticated but disallowed request (HTTP 403).
	CodeForbidden Code = "forbidden"
	// CodeInsert indicates a failed row insertion.
	CodeInsert Code = "insert_failed"
	// CodeEdit indicates a failed row update.
	CodeEdit Code = "edit_failed"
	// CodeDelete indicates a failed row removal.
	CodeDelete Code = "delete_failed"
	// CodeValidation indicates input that failed validation against column metadata.
	CodeValidation Code = "validation"
	// CodeNotFound indicates a missing row or resource.
	CodeNotFound Code = "not_found"
)

// userMessages maps each code to the message shown to end users when the
// caller does not supply one.
var userMessages = map[Code]string{
	CodeConfig:       "The data source is not configured correctly.",
	CodeNetwork:      "The data could not be loaded. Please try again.",
	CodeTimeout:      "The request took too long to complete. Please try again.",
	CodeUnauthorized: "You are not authorized to view this data.",
	CodeForbidden:    "You do not have permission to view this data.",
	CodeInsert:       "The row could not be added.",
	CodeEdit:         "The row could not be saved.",
	CodeDelete:       "The row could not be deleted.",
	CodeValidation:   "Some values are invalid.",
	CodeNotFound:     "The requested row could not be found.",
}

// UserMessage returns the default end-user message for the code.
func (c Code) UserMessage() string {
	if msg, ok := userMessages[c]; ok {
		return msg
	}
	return "Something went wrong while loading the data."
}

// E captures structured error information produced across the tessera stack.
type E struct {
	Source  string
	Code    Code
	HTTP    int
	Message string
	UserMsg string
	Details map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the originating source and error code.
func New(source string, code Code, opts ...Option) *E {
	e := &E{
		Source:  strings.TrimSpace(source),
		Code:    code,
		HTTP:    0,
		Message: "",
		UserMsg: "",
		Details: nil,
		cause:   nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.UserMsg == "" {
		e.UserMsg = code.UserMessage()
	}
	return e
}

// WithMessage attaches a technical, developer-facing message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithUserMessage overrides the generated end-user message.
func WithUserMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.UserMsg = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithDetails merges the provided detail pairs into the error envelope.
func WithDetails(details map[string]string) Option {
	return func(e *E) {
		if len(details) == 0 {
			return
		}
		if e.Details == nil {
			e.Details = make(map[string]string, len(details))
		}
		for k, v := range details {
			key := strings.TrimSpace(k)
			if key == "" {
				continue
			}
			e.Details[key] = strings.TrimSpace(v)
		}
	}
}

// WithField appends a single detail key/value pair.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Details == nil {
			e.Details = make(map[string]string, 1)
		}
		e.Details[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	source := strings.TrimSpace(e.Source)
	if source == "" {
		source = "unknown"
	}
	parts = append(parts, "source="+source)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			v := e.Details[k]
			pairs = append(pairs, k+"="+strconv.Quote(v))
		}
		parts = append(parts, "details="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Retriable reports whether a retry may plausibly succeed for this error.
// Only transport-level failures qualify; auth, validation, and configuration
// errors fail the same way every time.
func (e *E) Retriable() bool {
	if e == nil {
		return false
	}
	return e.Code == CodeNetwork || e.Code == CodeTimeout
}

// AsE extracts a structured envelope from err, or wraps a plain error into
// one attributed to source with the given fallback code.
func AsE(source string, code Code, err error) *E {
	if err == nil {
		return nil
	}
	if structured, ok := err.(*E); ok {
		return structured
	}
	return New(source, code, WithMessage(err.Error()), WithCause(err))
}

// NotSupported returns a standardized error for operations a backend does not
// implement.
func NotSupported(source string, code Code, op string) *E {
	return New(source, code, WithMessage("operation not supported: "+strings.TrimSpace(op)))
}
