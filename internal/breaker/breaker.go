// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package breaker implements the CFN loop's per-component circuit breaker:
// closed/open/half_open, tripping after a run of consecutive failures and
// probing for recovery after a fixed reset window.
//
// The mutex-guarded state transition and idempotent trip/reset pattern here
// is the same shape as the branch kill switch in
// internal/mergequeue/kill_switch.go: a single lock protects the state
// machine, transitions are atomic within the critical section, and repeated
// calls that would re-trigger an already-applied transition are no-ops.
package breaker

import (
	"sync"
	"time"

	"cfnloop/pkg/cfntypes"
)

// State is one of the three circuit breaker states.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

const (
	// DefaultFailureThreshold is the number of consecutive failures that
	// trips the breaker from closed to open.
	DefaultFailureThreshold = 3
	// DefaultResetTimeout is how long the breaker stays open before
	// allowing a single half-open probe.
	DefaultResetTimeout = 60 * time.Second
)

// CircuitBreaker guards one component (a signal target, an agent pool, a
// memory-store backend) from repeated failures by refusing further attempts
// once tripped, and testing recovery with a single probe after a cooldown.
type CircuitBreaker struct {
	mu sync.Mutex

	id               string
	failureThreshold int
	resetTimeout      time.Duration

	state               State
	consecutiveFailures int
	openedAt            time.Time
	halfOpenProbeInUse  bool
}

// New constructs a CircuitBreaker in the closed state with the given ID and
// the package's default failure threshold and reset timeout.
func New(id string) *CircuitBreaker {
	return &CircuitBreaker{
		id:               id,
		failureThreshold: DefaultFailureThreshold,
		resetTimeout:     DefaultResetTimeout,
		state:            StateClosed,
	}
}

// NewWithConfig constructs a CircuitBreaker with an explicit threshold and
// reset timeout, for tests and non-default deployments.
func NewWithConfig(id string, failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		id:               id,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		state:            StateClosed,
	}
}

// State returns the breaker's current state, resolving open→half_open
// lazily if the reset timeout has elapsed.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpenLocked()
	return b.state
}

func (b *CircuitBreaker) maybeTransitionToHalfOpenLocked() {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.resetTimeout {
		b.state = StateHalfOpen
		b.halfOpenProbeInUse = false
	}
}

// Allow reports whether an operation may proceed. In the half-open state
// only a single concurrent probe is allowed through; further callers are
// refused until that probe resolves via RecordSuccess/RecordFailure.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpenLocked()

	switch b.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if b.halfOpenProbeInUse {
			return b.openError()
		}
		b.halfOpenProbeInUse = true
		return nil
	default: // StateOpen
		return b.openError()
	}
}

func (b *CircuitBreaker) openError() *cfntypes.CircuitOpenError {
	return &cfntypes.CircuitOpenError{
		BreakerID:  b.id,
		OpenedAt:   b.openedAt.Unix(),
		ResetAfter: int64(b.resetTimeout.Seconds()),
	}
}

// RecordSuccess reports a successful operation. In half_open this closes the
// breaker and resets the failure count; in closed it resets the
// consecutive-failure counter. Idempotent in the closed state.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.halfOpenProbeInUse = false
	}
}

// RecordFailure reports a failed operation. In closed it increments the
// consecutive-failure counter, tripping to open once the threshold is
// reached. In half_open, any failure immediately reopens the breaker: the
// state always lands somewhere safe, never stuck mid-transition.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.tripLocked()
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.tripLocked()
		}
	case StateOpen:
		// already open; nothing to do
	}
}

// TripNow forces the breaker directly into the open state, bypassing the
// consecutive-failure counter entirely. The global sprint breaker uses this
// on a wall-clock timeout, which is fatal on its own occurrence rather than
// after a run of failures the way the primary/validator breakers trip.
func (b *CircuitBreaker) TripNow() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tripLocked()
}

func (b *CircuitBreaker) tripLocked() {
	b.state = StateOpen
	b.openedAt = time.Now()
	b.halfOpenProbeInUse = false
}

// ID returns the breaker's identifier.
func (b *CircuitBreaker) ID() string { return b.id }
