// Package retry implements the kernel's retry_with_backoff primitive
// (spec.md §4.3): exponential backoff with symmetric jitter, honoring a
// retryable error's retry_after hint, classified through kernel/llmerrors.
//
// The delay schedule is computed by the kernel itself per the spec's exact
// formula (min(max_delay, min_delay * multiplier^attempt), then jittered and
// floored at 0); github.com/cenkalti/backoff/v4 supplies the BackOff
// interface and the attempt-bounding/permanent-error plumbing so the loop
// itself reads the way the rest of the ecosystem writes retry loops.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/amplifier-ai/kernel/kernel/llmerrors"
	"github.com/amplifier-ai/kernel/kernel/telemetry"
)

// Config configures retry_with_backoff.
type Config struct {
	// MaxRetries bounds the number of retries after the first attempt. The
	// operation runs at most MaxRetries+1 times total. Zero means the
	// operation runs exactly once with no retries.
	MaxRetries int
	// MinDelay is the base delay before the first retry.
	MinDelay time.Duration
	// MaxDelay caps the computed delay before jitter is applied.
	MaxDelay time.Duration
	// Multiplier is the exponential growth factor applied per attempt.
	Multiplier float64
	// Jitter is the symmetric jitter fraction: the final delay is drawn from
	// [delay*(1-Jitter), delay*(1+Jitter)], clamped to >= 0.
	Jitter float64
	// HonorRetryAfter, when true, raises the computed delay to at least the
	// error's RetryAfter hint for KindRateLimit errors.
	HonorRetryAfter bool
	// OnRetry, if set, is invoked before sleeping for each retry.
	OnRetry func(attempt int, delay time.Duration, err error)
	// Logger receives a Warn entry for every retry and an Error entry when
	// all retries are exhausted. Defaults to a no-op logger.
	Logger telemetry.Logger
	// Rand supplies the jitter random source. Defaults to a fresh source
	// seeded from the current time on each Do call; tests may override for
	// deterministic output.
	Rand *rand.Rand
}

// Op is the operation retried by Do.
type Op func(ctx context.Context) error

// Do runs op up to cfg.MaxRetries+1 times per spec.md §4.3:
//   - a non-retryable error, or an error that is not a *llmerrors.Error,
//     is raised immediately (no retry);
//   - a retryable *llmerrors.Error is retried after a jittered backoff
//     delay, honoring RetryAfter when configured;
//   - after the last retry, the final error is returned.
func Do(ctx context.Context, cfg Config, op Op) error {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // jitter only, not security-sensitive
	}

	bo := &scheduleBackOff{cfg: cfg, rng: rng}
	wrapped := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxInt(cfg.MaxRetries, 0))), ctx)

	var lastErr error
	permanent := false
	attempt := 0
	operation := func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		llmErr, ok := llmerrors.As(err)
		if !ok || !llmErr.Retryable() {
			permanent = true
			return backoff.Permanent(err)
		}
		bo.pending = llmErr
		return err
	}

	notify := func(err error, delay time.Duration) {
		attempt++
		logger.Warn(ctx, "retry: backing off", "attempt", attempt, "delay", delay.String(), "error", err.Error())
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, err)
		}
	}

	err := backoff.RetryNotifyWithTimer(operation, wrapped, notify, nil)
	if err != nil {
		var permErr *backoff.PermanentError
		if errors.As(err, &permErr) {
			return permErr.Err
		}
		if permanent {
			return lastErr
		}
		logger.Error(ctx, "retry: exhausted all attempts", "error", err.Error())
		return lastErr
	}
	return nil
}

// scheduleBackOff implements backoff.BackOff using the kernel's exact delay
// formula instead of the library's default jitter/randomization.
type scheduleBackOff struct {
	cfg     Config
	rng     *rand.Rand
	attempt int
	pending *llmerrors.Error
}

func (b *scheduleBackOff) Reset() { b.attempt = 0 }

func (b *scheduleBackOff) NextBackOff() time.Duration {
	delay := computeDelay(b.cfg, b.rng, b.attempt, b.pending)
	b.attempt++
	return delay
}

// computeDelay implements spec.md §4.3's exact formula:
//
//	delay = min(max_delay, min_delay * multiplier^attempt)
//	if retryAfter set and HonorRetryAfter: delay = max(delay, retryAfter)
//	delay = delay +/- jitter*delay, clamped to >= 0
func computeDelay(cfg Config, rng *rand.Rand, attempt int, pending *llmerrors.Error) time.Duration {
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	base := float64(cfg.MinDelay) * pow(multiplier, attempt)
	if cfg.MaxDelay > 0 && base > float64(cfg.MaxDelay) {
		base = float64(cfg.MaxDelay)
	}
	if cfg.HonorRetryAfter && pending != nil && pending.Kind() == llmerrors.KindRateLimit {
		if retryAfter, ok := pending.RetryAfter(); ok && float64(retryAfter) > base {
			base = float64(retryAfter)
		}
	}
	if cfg.Jitter > 0 {
		// Symmetric jitter in [-jitter*base, +jitter*base].
		spread := base * cfg.Jitter
		base += (rng.Float64()*2 - 1) * spread
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
