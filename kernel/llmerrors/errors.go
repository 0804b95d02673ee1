// Package llmerrors implements the kernel's closed LLM/provider error
// taxonomy (spec.md §3) and the classify heuristic that maps a raw provider
// message and HTTP status code onto a Kind.
//
// Grounded on the teacher's runtime/agent/model.ProviderError: a single
// struct carrying provider/status/retryable plus kind-specific optional
// fields, rather than one Go type per kind.
package llmerrors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the closed set of LLM/provider error kinds.
type Kind string

const (
	KindRateLimit          Kind = "rate_limit"
	KindAuthentication     Kind = "authentication"
	KindAccessDenied       Kind = "access_denied" // subtype of Authentication
	KindContextLength      Kind = "context_length"
	KindContentFilter      Kind = "content_filter"
	KindInvalidRequest     Kind = "invalid_request"
	KindNotFound           Kind = "not_found"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindNetwork            Kind = "network" // subtype of ProviderUnavailable
	KindTimeout            Kind = "timeout"
	KindStream             Kind = "stream"
	KindAbort              Kind = "abort"
	KindInvalidToolCall    Kind = "invalid_tool_call"
	KindConfiguration      Kind = "configuration"
	KindQuotaExceeded      Kind = "quota_exceeded" // subtype of RateLimit, non-retryable by default
)

// defaultRetryable holds the default retryability for each kind per spec.md
// §3: "{RateLimit, ProviderUnavailable, Network, Timeout, Stream} ->
// retryable; all others -> not retryable unless overridden."
var defaultRetryable = map[Kind]bool{
	KindRateLimit:           true,
	KindProviderUnavailable: true,
	KindNetwork:             true,
	KindTimeout:             true,
	KindStream:              true,
	KindQuotaExceeded:       false, // explicit override: non-retryable despite being a RateLimit subtype
}

// DefaultRetryable returns the default retryability for kind, absent any
// explicit override.
func DefaultRetryable(kind Kind) bool {
	return defaultRetryable[kind]
}

// Error is the concrete LLM/provider error type. Construct it with New, or
// classify a raw message/status via Classify.
type Error struct {
	provider    string
	kind        Kind
	statusCode  int
	retryable   bool
	message     string
	cause       error
	retryAfter  time.Duration
	hasRetryAfter bool
	toolName    string
	toolRawArgs string
}

// New constructs an Error. provider and kind are required; retryable
// defaults to the kind's DefaultRetryable value unless overridden via
// WithRetryable.
func New(provider string, kind Kind, statusCode int, message string, cause error) *Error {
	if provider == "" {
		panic("llmerrors: provider is required")
	}
	if kind == "" {
		panic("llmerrors: kind is required")
	}
	return &Error{
		provider:   provider,
		kind:       kind,
		statusCode: statusCode,
		retryable:  DefaultRetryable(kind),
		message:    message,
		cause:      cause,
	}
}

// WithRetryable overrides the default retryability.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.retryable = retryable
	return e
}

// WithRetryAfter attaches a provider-declared retry-after hint. Only
// meaningful for KindRateLimit.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.retryAfter = d
	e.hasRetryAfter = true
	return e
}

// WithToolCall attaches the failing tool name and raw arguments. Only
// meaningful for KindInvalidToolCall.
func (e *Error) WithToolCall(toolName, rawArgs string) *Error {
	e.toolName = toolName
	e.toolRawArgs = rawArgs
	return e
}

// Provider returns the provider identifier (e.g. "anthropic").
func (e *Error) Provider() string { return e.provider }

// Kind returns the coarse-grained error classification.
func (e *Error) Kind() Kind { return e.kind }

// StatusCode returns the provider HTTP status code, or 0 if unknown.
func (e *Error) StatusCode() int { return e.statusCode }

// Retryable reports whether the retry primitive should retry this error.
func (e *Error) Retryable() bool { return e.retryable }

// RetryAfter returns the provider-declared retry-after duration and whether
// one was set.
func (e *Error) RetryAfter() (time.Duration, bool) { return e.retryAfter, e.hasRetryAfter }

// ToolCall returns the tool name and raw arguments for a KindInvalidToolCall
// error.
func (e *Error) ToolCall() (name, rawArgs string) { return e.toolName, e.toolRawArgs }

func (e *Error) Error() string {
	msg := e.message
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if msg == "" {
		msg = "provider error"
	}
	status := ""
	if e.statusCode > 0 {
		status = fmt.Sprintf(" status=%d", e.statusCode)
	}
	return fmt.Sprintf("%s: %s%s: %s", e.provider, e.kind, status, msg)
}

// Unwrap preserves the original error chain.
func (e *Error) Unwrap() error { return e.cause }

// As reports whether err's chain contains an *Error, returning it if so.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Classify maps a raw error message and HTTP status code onto a Kind per
// spec.md §4.3: status codes 401/403/404/413/429/5xx resolve unambiguously;
// 400/422 and all other codes fall through to lowercase substring matching.
func Classify(message string, statusCode int) Kind {
	switch statusCode {
	case 401:
		return KindAuthentication
	case 403:
		return KindAccessDenied
	case 404:
		return KindNotFound
	case 413:
		return KindContextLength
	case 429:
		return KindRateLimit
	}
	if statusCode >= 500 && statusCode < 600 {
		return KindProviderUnavailable
	}

	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "context length"):
		return KindContextLength
	case strings.Contains(lower, "rate limit"):
		return KindRateLimit
	case strings.Contains(lower, "unauthorized"):
		return KindAuthentication
	case strings.Contains(lower, "not found"):
		return KindNotFound
	case strings.Contains(lower, "content filter"), strings.Contains(lower, "safety"), strings.Contains(lower, "blocked"):
		return KindContentFilter
	}
	return KindInvalidRequest
}

// NewClassified is a convenience constructor that classifies message/status
// and builds an Error with the resulting kind's default retryability.
func NewClassified(provider, message string, statusCode int, cause error) *Error {
	return New(provider, Classify(message, statusCode), statusCode, message, cause)
}
