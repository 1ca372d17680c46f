package afip

import (
	"sync"
	"time"
)

// BreakerState represents the state of the circuit breaker.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // Normal operation
	BreakerOpen                         // Calls fail fast
	BreakerHalfOpen                     // Probing whether the service recovered
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker stops calling the authorization service after repeated
// transport failures. Only errors returned from the guarded function count.
type CircuitBreaker struct {
	maxFailures      int           // Consecutive failures before opening
	cooldownPeriod   time.Duration // Time to wait before a half-open probe
	successThreshold int           // Successes needed to close from half-open

	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	successCount    int
	lastStateChange time.Time
	now             func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(maxFailures int, cooldownPeriod time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if cooldownPeriod <= 0 {
		cooldownPeriod = 30 * time.Second
	}

	return &CircuitBreaker{
		maxFailures:      maxFailures,
		cooldownPeriod:   cooldownPeriod,
		successThreshold: 1,
		state:            BreakerClosed,
		now:              time.Now,
	}
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrBreakerOpen
	}

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failureCount++
		if cb.state == BreakerHalfOpen || cb.failureCount >= cb.maxFailures {
			cb.transition(BreakerOpen)
		}
		return err
	}

	cb.failureCount = 0
	if cb.state == BreakerHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.transition(BreakerClosed)
		}
	}
	return nil
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != BreakerOpen {
		return true
	}
	if cb.now().Sub(cb.lastStateChange) < cb.cooldownPeriod {
		return false
	}
	cb.transition(BreakerHalfOpen)
	return true
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to BreakerState) {
	cb.state = to
	cb.successCount = 0
	if to == BreakerClosed {
		cb.failureCount = 0
	}
	cb.lastStateChange = cb.now()
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(BreakerClosed)
}

// ErrBreakerOpen is returned while the breaker rejects calls.
var ErrBreakerOpen = &BreakerError{Message: "authorization service circuit breaker is open"}

// BreakerError represents a circuit breaker error.
type BreakerError struct {
	Message string
}

func (e *BreakerError) Error() string {
	return e.Message
}
