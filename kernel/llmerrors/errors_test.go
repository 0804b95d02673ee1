package llmerrors_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amplifier-ai/kernel/kernel/llmerrors"
)

func TestClassify_StatusCodes(t *testing.T) {
	cases := map[int]llmerrors.Kind{
		401: llmerrors.KindAuthentication,
		403: llmerrors.KindAccessDenied,
		404: llmerrors.KindNotFound,
		413: llmerrors.KindContextLength,
		429: llmerrors.KindRateLimit,
		500: llmerrors.KindProviderUnavailable,
		503: llmerrors.KindProviderUnavailable,
	}
	for status, want := range cases {
		assert.Equal(t, want, llmerrors.Classify("", status), "status %d", status)
	}
}

func TestClassify_SubstringFallback(t *testing.T) {
	cases := map[string]llmerrors.Kind{
		"the context length exceeded the model limit": llmerrors.KindContextLength,
		"you are being Rate Limited":                   llmerrors.KindRateLimit,
		"request Unauthorized":                          llmerrors.KindAuthentication,
		"resource not found":                            llmerrors.KindNotFound,
		"response blocked by content filter":            llmerrors.KindContentFilter,
		"flagged for safety":                             llmerrors.KindContentFilter,
		"completely unrelated message":                  llmerrors.KindInvalidRequest,
	}
	for msg, want := range cases {
		assert.Equal(t, want, llmerrors.Classify(msg, 0), "message %q", msg)
		assert.Equal(t, want, llmerrors.Classify(msg, 400), "message %q with 400", msg)
		assert.Equal(t, want, llmerrors.Classify(msg, 422), "message %q with 422", msg)
	}
}

func TestDefaultRetryable(t *testing.T) {
	assert.True(t, llmerrors.DefaultRetryable(llmerrors.KindRateLimit))
	assert.True(t, llmerrors.DefaultRetryable(llmerrors.KindProviderUnavailable))
	assert.True(t, llmerrors.DefaultRetryable(llmerrors.KindNetwork))
	assert.True(t, llmerrors.DefaultRetryable(llmerrors.KindTimeout))
	assert.True(t, llmerrors.DefaultRetryable(llmerrors.KindStream))
	assert.False(t, llmerrors.DefaultRetryable(llmerrors.KindQuotaExceeded))
	assert.False(t, llmerrors.DefaultRetryable(llmerrors.KindAuthentication))
	assert.False(t, llmerrors.DefaultRetryable(llmerrors.KindInvalidRequest))
}

func TestError_UnwrapAndAs(t *testing.T) {
	cause := errors.New("socket reset")
	err := llmerrors.New("anthropic", llmerrors.KindNetwork, 0, "connection reset", cause)

	wrapped := fmtErrorf(err)
	got, ok := llmerrors.As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "anthropic", got.Provider())
	assert.Equal(t, llmerrors.KindNetwork, got.Kind())
	assert.True(t, got.Retryable())
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestError_RetryAfter(t *testing.T) {
	err := llmerrors.New("openai", llmerrors.KindRateLimit, 429, "slow down", nil).
		WithRetryAfter(30 * time.Second)
	d, ok := err.RetryAfter()
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, d)
}

func fmtErrorf(err error) error {
	return errors.Join(err)
}
