package agenterrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_String(t *testing.T) {
	assert.Equal(t, "UPSTREAM_RATE_LIMITED", UpstreamRateLimited.String())
	assert.Equal(t, "THREAD_FULL", ThreadFull.String())
	assert.Equal(t, "UNKNOWN_KIND", Kind(999).String())
}

func TestIs_MatchesKindAndRejectsOtherErrors(t *testing.T) {
	err := UnknownModelErr("gpt-9", []string{"gpt-5"})
	assert.True(t, Is(err, UnknownModel))
	assert.False(t, Is(err, Restricted))
	assert.False(t, Is(errors.New("plain error"), UnknownModel))
}

func TestError_UnwrapReachesUnderlyingError(t *testing.T) {
	underlying := errors.New("network reset")
	err := New(Internal, "wrapped", underlying)
	assert.Equal(t, underlying, errors.Unwrap(err))
}

func TestUpstreamRateLimitedErr_CarriesRetryAfter(t *testing.T) {
	err := UpstreamRateLimitedErr(42)
	assert.Equal(t, UpstreamRateLimited, err.Kind)
	assert.Equal(t, 42, err.RetryAfter)
}

func TestSchemaInvalidErr_CarriesFieldPath(t *testing.T) {
	err := SchemaInvalidErr("/model", errors.New("bad type"))
	assert.Equal(t, "/model", err.FieldPath)
	assert.ErrorContains(t, err, "/model")
}

func TestThreadErr_BuildsMessageFromKindAndID(t *testing.T) {
	err := ThreadErr(ThreadExpired, "thread-123")
	assert.Equal(t, ThreadExpired, err.Kind)
	assert.Contains(t, err.Error(), "thread-123")
}

func TestLogFields_IncludesOptionalPayloadOnlyWhenSet(t *testing.T) {
	plain := New(Internal, "boom", nil)
	fields := plain.LogFields()
	assert.Len(t, fields, 2) // kind + message only

	rich := UpstreamHTTPErr(503, "service unavailable")
	fields = rich.LogFields()

	var sawStatus bool
	for _, f := range fields {
		if f.Key == "http_status" {
			sawStatus = true
		}
	}
	assert.True(t, sawStatus)
}

func TestErrorAs_ResolvesToCodedError(t *testing.T) {
	var err error = RestrictedErr("gpt-5", []string{"o4-mini"})
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, Restricted, ce.Kind)
	assert.Equal(t, []string{"o4-mini"}, ce.Allowed)
}
