package fetcher

import (
	"errors"
	"time"
)

// Backoff declares the retry schedule: MaxAttempts total attempts, waiting
// min(BaseDelay*2^retry, MaxDelay) before each retry.
type Backoff struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
	}
}

func (b Backoff) Validate() error {
	if b.MaxAttempts < 1 {
		return errors.New("backoff: max attempts must be >= 1")
	}
	if b.BaseDelay < 0 || b.MaxDelay < 0 {
		return errors.New("backoff: delays must be >= 0")
	}
	if b.MaxDelay < b.BaseDelay {
		return errors.New("backoff: max delay must be >= base delay")
	}
	return nil
}

// Delay returns the wait before retry number retry (0-based).
func (b Backoff) Delay(retry int) time.Duration {
	d := b.BaseDelay
	for i := 0; i < retry; i++ {
		d *= 2
		if d >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	if d > b.MaxDelay {
		return b.MaxDelay
	}
	return d
}

// Schedule lists every wait a fully failing fetch goes through.
func (b Backoff) Schedule() []time.Duration {
	if b.MaxAttempts <= 1 {
		return nil
	}
	out := make([]time.Duration, b.MaxAttempts-1)
	for i := range out {
		out[i] = b.Delay(i)
	}
	return out
}

// Total is the sum of Schedule.
func (b Backoff) Total() time.Duration {
	var sum time.Duration
	for _, d := range b.Schedule() {
		sum += d
	}
	return sum
}
