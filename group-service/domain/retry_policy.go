package domain

import (
	"time"

	"github.com/pkg/errors"
)

// RetryPolicy bounds how a node attempt is retried after network errors.
// The delay before retry n (1-based) is BaseDelay * 2^(n-1), capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is 3 attempts, 4s base delay, 10s cap
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   4 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// NoDelayRetryPolicy retries immediately
func NoDelayRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts}
}

// Delay returns the wait before retry number n (1-based)
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 || p.BaseDelay <= 0 {
		return 0
	}

	delay := p.BaseDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.New("retry max attempts must be at least 1")
	}

	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return errors.New("retry delays must not be negative")
	}

	if p.MaxDelay > 0 && p.BaseDelay > p.MaxDelay {
		return errors.New("retry base delay must not exceed max delay")
	}

	return nil
}
