package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behavior for calls to the AI service.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	// Default: 5.
	MaxRetries int

	// InitialBackoff is the delay before the first retry; it doubles on
	// every subsequent retry. Default: 2s.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration. Default: 60s.
	MaxBackoff time.Duration

	// ProgressInterval is how often OnProgress fires during a wait.
	// Default: 1s.
	ProgressInterval time.Duration

	// OnProgress receives human-readable countdown messages during backoff
	// waits. It must not block; it runs on the retry loop.
	OnProgress func(message string)

	// ShouldRetry optionally overrides the default rate-limit/overload
	// check. If nil, IsRetryable is used.
	ShouldRetry func(err error) bool
}

// DefaultRetryConfig returns the retry configuration used for extraction calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:       5,
		InitialBackoff:   2 * time.Second,
		MaxBackoff:       60 * time.Second,
		ProgressInterval: time.Second,
	}
}

// DoVal executes fn, retrying on rate-limit and overload failures with
// exponential backoff. A provider-supplied "retry in Xs" hint overrides the
// computed delay. Fatal errors propagate on first occurrence; after
// MaxRetries consecutive retryable failures the last error is returned.
// Context cancellation stops the wait immediately.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}

	var zero T
	var lastErr error
	for attempt := 0; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !shouldRetry(lastErr) {
			return zero, lastErr
		}
		if attempt >= cfg.MaxRetries {
			return zero, lastErr
		}

		delay := cfg.InitialBackoff << attempt
		if delay > cfg.MaxBackoff {
			delay = cfg.MaxBackoff
		}
		if hint, ok := RetryHint(lastErr); ok {
			delay = hint
		}

		remaining := cfg.MaxRetries - attempt
		zap.L().Warn("retrying after retryable failure",
			zap.Int("attempt", attempt+1),
			zap.Int("retries_remaining", remaining),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)

		if err := wait(ctx, cfg, delay, retryReason(lastErr), remaining); err != nil {
			return zero, lastErr
		}
	}
}

// Do is DoVal for operations without a return value.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// wait sleeps for delay, emitting a countdown progress message every
// ProgressInterval so the caller can render live feedback.
func wait(ctx context.Context, cfg RetryConfig, delay time.Duration, reason string, remaining int) error {
	deadline := time.Now().Add(delay)

	emit := func() {
		if cfg.OnProgress == nil {
			return
		}
		left := time.Until(deadline)
		if left < 0 {
			left = 0
		}
		cfg.OnProgress(fmt.Sprintf("%s; retrying in %ds (%d retries left)",
			reason, int(left.Round(time.Second)/time.Second), remaining))
	}
	emit()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	ticker := time.NewTicker(cfg.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			emit()
		case <-timer.C:
			return nil
		}
	}
}

// retryReason renders a short human-readable cause for progress messages.
func retryReason(err error) string {
	msg := strings.ToLower(err.Error())

	var te *TransientError
	if errors.As(err, &te) {
		switch te.StatusCode {
		case 429:
			return "rate limited"
		case 503, 529:
			return "service overloaded"
		}
	}
	if strings.Contains(msg, "429") || strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "rate limit") {
		return "rate limited"
	}
	return "service overloaded"
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 2 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = time.Second
	}
	return cfg
}
