package resilience

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TransientError wraps an error that is safe to retry (rate limit or service
// overload), with the HTTP status code when one is known.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsRetryable returns true only for rate-limit and overload signals: an
// explicit TransientError in the chain, HTTP 429/503/529, or the provider's
// textual markers. Everything else is fatal and must propagate on first
// occurrence.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		switch te.StatusCode {
		case 0, 429, 503, 529:
			return true
		default:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"429",
		"resource_exhausted",
		"rate limit",
		"503",
		"unavailable",
		"overloaded",
	}
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// retryHintRe matches provider-supplied backoff hints like "retry in 7s" or
// "please retry in 12.5s".
var retryHintRe = regexp.MustCompile(`(?i)retry in (\d+(?:\.\d+)?)s`)

// RetryHint extracts a provider-supplied backoff duration from the error
// message, if present. The hint overrides the computed exponential delay.
func RetryHint(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	m := retryHintRe.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	secs, parseErr := strconv.ParseFloat(m[1], 64)
	if parseErr != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}
