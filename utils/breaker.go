package utils

import (
	"fmt"
	"sync"
	"time"
)

type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// CircuitBreaker fails fast after Threshold consecutive failures and lets a
// single trial call through once Cooldown has elapsed.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	logger    *Logger
	now       func() time.Time

	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	lastFailureTime time.Time
	trialInFlight   bool
}

// NewCircuitBreaker creates a closed breaker guarding one operation.
func NewCircuitBreaker(name string, threshold int, cooldown time.Duration, logger *Logger) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &CircuitBreaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger,
		now:       time.Now,
		state:     StateClosed,
	}
}

// WithClock replaces the time source. Used by tests.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) < cb.cooldown {
			return fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
		}
		cb.transition(StateHalfOpen)
		cb.trialInFlight = true
	case StateHalfOpen:
		if cb.trialInFlight {
			return fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
		}
		cb.trialInFlight = true
	}
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasTrial := cb.state == StateHalfOpen
	cb.trialInFlight = false

	if err == nil {
		if cb.state == StateOpen {
			return
		}
		cb.failureCount = 0
		if wasTrial {
			cb.transition(StateClosed)
		}
		return
	}

	cb.failureCount++
	cb.lastFailureTime = cb.now()
	if wasTrial || cb.failureCount >= cb.threshold {
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) transition(to BreakerState) {
	if cb.state == to {
		return
	}
	if cb.logger != nil {
		cb.logger.Warn("[breaker] %s: %s -> %s (failures: %d)", cb.name, cb.state, to, cb.failureCount)
	}
	cb.state = to
}

// State returns the current state without advancing it.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}
