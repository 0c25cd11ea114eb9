package notify

import "time"

const (
	// DefaultRetryDelay is the fixed wait between reconnect attempts.
	DefaultRetryDelay = 3 * time.Second
	// DefaultMaxAttempts bounds consecutive reconnect attempts.
	DefaultMaxAttempts = 5
)

// RetryPolicy fixed-delay, bounded-attempt reconnection policy
type RetryPolicy struct {
	Delay       time.Duration // Wait before each reconnect attempt
	MaxAttempts int           // Attempts allowed before giving up
}

// DefaultRetryPolicy returns the default reconnection policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Delay:       DefaultRetryDelay,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Next reports whether another attempt may be scheduled given the number of
// attempts already made, and the delay to wait before it.
func (p RetryPolicy) Next(attempts int) (time.Duration, bool) {
	if attempts >= p.MaxAttempts {
		return 0, false
	}
	return p.Delay, true
}
