// Package agenterrors defines the single coded-error type used across every
// component boundary in the server, carrying a closed Kind enum instead of
// ad hoc sentinel errors or string-typed codes.
package agenterrors

import (
	"fmt"

	"github.com/zenmcp/server-core/internal/zlog"
)

// Kind is the closed taxonomy from the error handling design.
type Kind int

const (
	ConfigInvalid Kind = iota
	UnknownModel
	Restricted
	UpstreamHTTP
	UpstreamTimeout
	UpstreamRateLimited
	ThreadUnknown
	ThreadExpired
	ThreadFull
	SchemaInvalid
	Internal
)

func (k Kind) String() string {
	switch k {
	case ConfigInvalid:
		return "CONFIG_INVALID"
	case UnknownModel:
		return "UNKNOWN_MODEL"
	case Restricted:
		return "RESTRICTED"
	case UpstreamHTTP:
		return "UPSTREAM_HTTP"
	case UpstreamTimeout:
		return "UPSTREAM_TIMEOUT"
	case UpstreamRateLimited:
		return "UPSTREAM_RATE_LIMITED"
	case ThreadUnknown:
		return "THREAD_UNKNOWN"
	case ThreadExpired:
		return "THREAD_EXPIRED"
	case ThreadFull:
		return "THREAD_FULL"
	case SchemaInvalid:
		return "SCHEMA_INVALID"
	case Internal:
		return "INTERNAL"
	default:
		return "UNKNOWN_KIND"
	}
}

// Error is the coded error type every component returns across a package
// boundary. Internal helpers may still return a bare error; anything
// surfaced to the dispatcher or the host must be wrapped as one of these.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	// Optional, kind-specific diagnostic payload.
	HTTPStatus int    // UpstreamHTTP
	RetryAfter int    // UpstreamRateLimited, seconds
	FieldPath  string // SchemaInvalid
	Allowed    []string // UnknownModel, Restricted: suggested/allowed models
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error of the given kind.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// UnknownModelErr creates an UnknownModel error with suggested alternatives.
func UnknownModelErr(name string, allowed []string) *Error {
	return &Error{
		Kind:    UnknownModel,
		Message: fmt.Sprintf("model %q does not resolve in any configured provider", name),
		Allowed: allowed,
	}
}

// RestrictedErr creates a Restricted error with the allowed set for the provider.
func RestrictedErr(name string, allowed []string) *Error {
	return &Error{
		Kind:    Restricted,
		Message: fmt.Sprintf("model %q is disallowed by operator policy", name),
		Allowed: allowed,
	}
}

// UpstreamHTTPErr creates a non-retryable upstream HTTP failure.
func UpstreamHTTPErr(status int, bodyExcerpt string) *Error {
	return &Error{
		Kind:       UpstreamHTTP,
		Message:    fmt.Sprintf("upstream returned HTTP %d: %s", status, bodyExcerpt),
		HTTPStatus: status,
	}
}

// UpstreamTimeoutErr creates a deadline-exceeded error.
func UpstreamTimeoutErr(err error) *Error {
	return &Error{Kind: UpstreamTimeout, Message: "request timed out after retries", Err: err}
}

// UpstreamRateLimitedErr creates a 429 error, optionally carrying Retry-After.
func UpstreamRateLimitedErr(retryAfter int) *Error {
	return &Error{
		Kind:       UpstreamRateLimited,
		Message:    "upstream rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// SchemaInvalidErr creates a schema validation failure naming the offending field.
func SchemaInvalidErr(fieldPath string, err error) *Error {
	return &Error{
		Kind:      SchemaInvalid,
		Message:   fmt.Sprintf("input failed schema validation at %s", fieldPath),
		Err:       err,
		FieldPath: fieldPath,
	}
}

// InternalErr wraps an unexpected error, typically from a recovered panic.
func InternalErr(correlationID string, err error) *Error {
	return &Error{
		Kind:    Internal,
		Message: fmt.Sprintf("internal error (correlation_id=%s)", correlationID),
		Err:     err,
	}
}

// ThreadErr constructs one of the three conversation-memory error kinds.
func ThreadErr(kind Kind, threadID string) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf("thread %s: %s", threadID, kind),
	}
}

// Is reports whether err is a coded Error of the given kind.
func Is(err error, kind Kind) bool {
	ce, ok := err.(*Error)
	return ok && ce.Kind == kind
}

// LogFields converts the error into structured log fields.
func (e *Error) LogFields() []zlog.Field {
	fields := []zlog.Field{
		zlog.F("error_kind", e.Kind.String()),
		zlog.F("error_message", e.Message),
	}
	if e.HTTPStatus != 0 {
		fields = append(fields, zlog.F("http_status", e.HTTPStatus))
	}
	if e.RetryAfter != 0 {
		fields = append(fields, zlog.F("retry_after", e.RetryAfter))
	}
	if e.FieldPath != "" {
		fields = append(fields, zlog.F("field_path", e.FieldPath))
	}
	if e.Err != nil {
		fields = append(fields, zlog.F("underlying_error", e.Err.Error()))
	}
	return fields
}
