package client

import (
	"errors"
	"fmt"

	"github.com/smnsjas/go-sasl2/native"
)

// Sentinel errors.
var (
	// ErrDisposed is returned by every operation on a closed Client.
	ErrDisposed = errors.New("client: disposed")

	// ErrNotStarted is returned by Step before Start.
	ErrNotStarted = errors.New("client: negotiation not started")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("client: negotiation already started")

	// ErrNegotiationFailed is returned by operations after a failed call.
	ErrNegotiationFailed = errors.New("client: negotiation failed")

	// ErrNegotiationComplete is returned by Step after success.
	ErrNegotiationComplete = errors.New("client: negotiation already complete")

	// ErrNoValue may be returned by a Provider to report that it has no
	// value. It is not reported as a fault.
	ErrNoValue = errors.New("client: no value")
)

// EngineInitError is returned when the engine cannot be initialized. It is
// fatal: every later Init returns the same error.
type EngineInitError struct {
	Op     string
	Status native.Status
	Err    error
}

func (e *EngineInitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sasl engine init: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sasl engine init: %s: %s", e.Op, e.Status)
}

func (e *EngineInitError) Unwrap() error {
	return e.Err
}

// EngineCreateError is returned when the engine rejects a new client.
type EngineCreateError struct {
	Status native.Status
	Detail string
}

func (e *EngineCreateError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("sasl client create: %s: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("sasl client create: %s", e.Status)
}

// EngineCallError is returned when ListMechanisms, Start or Step report a
// failure status. The Client cannot be used afterwards except for Close.
type EngineCallError struct {
	Op     string
	Status native.Status
	Detail string
}

func (e *EngineCallError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Status)
}

// Is matches ErrNegotiationFailed.
func (e *EngineCallError) Is(target error) bool {
	return target == ErrNegotiationFailed
}

// StatusOf returns the native status carried by err, if any.
func StatusOf(err error) (native.Status, bool) {
	var initErr *EngineInitError
	if errors.As(err, &initErr) && initErr.Err == nil {
		return initErr.Status, true
	}
	var createErr *EngineCreateError
	if errors.As(err, &createErr) {
		return createErr.Status, true
	}
	var callErr *EngineCallError
	if errors.As(err, &callErr) {
		return callErr.Status, true
	}
	return 0, false
}

// IsAuthFailure returns true if the engine rejected the credentials.
func (e *EngineCallError) IsAuthFailure() bool {
	switch e.Status {
	case native.StatusBadAuth, native.StatusNoAuthz, native.StatusNoUser, native.StatusExpired, native.StatusDisabled:
		return true
	}
	return false
}

// IsNoMechanism returns true if none of the offered mechanisms is usable.
func (e *EngineCallError) IsNoMechanism() bool {
	return e.Status == native.StatusNoMech || e.Status == native.StatusTooWeak
}

// IsEngineCallError returns true if err is an EngineCallError.
func IsEngineCallError(err error) bool {
	var e *EngineCallError
	return errors.As(err, &e)
}
