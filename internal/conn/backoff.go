// Package conn owns the transport lifecycle: connect, disconnect detection,
// reconnection with backoff, and routing of inbound events.
package conn

import "time"

// BackoffPolicy describes the delay strategy between reconnect attempts:
// exponential growth from InitialDelay, bounded above by MaxDelay.
type BackoffPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// MaxAttempts bounds the number of reconnect attempts per outage.
	// Zero means retry forever.
	MaxAttempts int
}

// DefaultBackoffPolicy matches the observed dashboard transport settings:
// unbounded attempts, 1s initial delay, 5s cap.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		MaxAttempts:  0,
	}
}

// Delay returns the wait before the given attempt (1-based): the initial
// delay doubled per attempt, capped at MaxDelay. Attempts below 1 are
// treated as 1.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.InitialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Exhausted reports whether the attempt number exceeds the policy's bound.
func (p BackoffPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}
