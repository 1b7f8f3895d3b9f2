package imap

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"strings"
	"time"

	"github.com/smnsjas/go-sasl2/client"
)

// RetryPolicy configures how Login retries transient failures.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the backoff.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts.
	Multiplier float64
}

// DefaultRetryPolicy returns three attempts with exponential backoff.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// isRetryableError determines if a failed login should be attempted again.
//
// Only transport problems are retried. Authentication outcomes and engine
// failures are final: repeating them cannot change the answer and may lock
// the account.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Non-retryable: user cancelled
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Non-retryable: breaker refused the attempt
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}

	// Non-retryable: negotiation or engine failures
	var createErr *client.EngineCreateError
	if client.IsEngineCallError(err) || errors.As(err, &createErr) {
		return false
	}
	if errors.Is(err, ErrNoMechanisms) {
		return false
	}

	// Retryable: network timeout
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Retryable: connection closed/reset
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "no route to host") ||
		strings.Contains(errStr, "broken pipe")
}

// calculateRetryBackoff computes exponential backoff with cap.
func calculateRetryBackoff(attempt int, policy *RetryPolicy) time.Duration {
	if policy == nil {
		return time.Second
	}

	delay := policy.InitialDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	if attempt <= 1 {
		return delay
	}

	multiplier := policy.Multiplier
	if multiplier < 1.0 {
		multiplier = 2.0
	}

	backoffFloat := float64(delay) * math.Pow(multiplier, float64(attempt-1))
	if backoffFloat > float64(policy.MaxDelay) || backoffFloat > float64(math.MaxInt64) {
		backoff := policy.MaxDelay
		if backoff <= 0 {
			backoff = 5 * time.Second
		}
		return backoff
	}
	return time.Duration(backoffFloat)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
