package imap

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	// StateClosed means connection attempts pass.
	StateClosed CircuitState = iota
	// StateOpen means connection attempts fail fast.
	StateOpen
	// StateHalfOpen means one probing attempt is allowed.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("imap: circuit breaker is open")

// CircuitBreakerPolicy configures the breaker guarding a server.
type CircuitBreakerPolicy struct {
	// FailureThreshold is the number of consecutive failed logins that
	// opens the circuit.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before a probe.
	ResetTimeout time.Duration

	// OnStateChange is called asynchronously on every transition.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerPolicy opens after 5 failures for 30 seconds.
func DefaultCircuitBreakerPolicy() *CircuitBreakerPolicy {
	return &CircuitBreakerPolicy{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// CircuitBreaker stops hammering a server that keeps failing.
type CircuitBreaker struct {
	mu sync.Mutex

	state       CircuitState
	failures    int
	lastFailure time.Time

	threshold     int
	timeout       time.Duration
	enabled       bool
	now           func() time.Time
	onStateChange func(from, to CircuitState)
}

// NewCircuitBreaker creates a breaker. A nil policy disables it.
func NewCircuitBreaker(policy *CircuitBreakerPolicy) *CircuitBreaker {
	if policy == nil {
		return &CircuitBreaker{now: time.Now}
	}
	threshold := policy.FailureThreshold
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		state:         StateClosed,
		threshold:     threshold,
		timeout:       policy.ResetTimeout,
		enabled:       true,
		now:           time.Now,
		onStateChange: policy.OnStateChange,
	}
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.enabled {
		return fn()
	}
	if err := cb.checkState(); err != nil {
		return err
	}
	err := fn()
	cb.updateState(err)
	return err
}

func (cb *CircuitBreaker) checkState() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailure) > cb.timeout {
			cb.transitionToLocked(StateHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	}
	return nil
}

// transitionToLocked changes state. Must be called with cb.mu held.
func (cb *CircuitBreaker) transitionToLocked(newState CircuitState) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState
	if cb.onStateChange != nil {
		go cb.onStateChange(oldState, newState)
	}
}

func (cb *CircuitBreaker) updateState(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.transitionToLocked(StateClosed)
		}
		cb.failures = 0
		return
	}
	if errors.Is(err, ErrCircuitOpen) {
		return
	}

	cb.failures++
	cb.lastFailure = cb.now()

	if cb.state == StateHalfOpen {
		cb.transitionToLocked(StateOpen)
		return
	}
	if cb.state == StateClosed && cb.failures >= cb.threshold {
		cb.transitionToLocked(StateOpen)
	}
}

// Failures returns the number of consecutive failures recorded.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
