package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State of the breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrOpen is wrapped into the error returned while the breaker rejects calls.
var ErrOpen = fmt.Errorf("circuit open")

type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive half-open successes that
	// closes it again.
	SuccessThreshold int
	// CoolDown is how long the circuit stays open before probing.
	CoolDown time.Duration
	// HalfOpenLimit caps concurrent probe calls while half-open.
	HalfOpenLimit int
}

// DefaultConfig suits short durable-store writes: trip fast, probe after a
// few seconds so a recovered store is picked up within one session lifetime.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		CoolDown:         10 * time.Second,
		HalfOpenLimit:    1,
	}
}

// CircuitBreaker sheds calls to a dependency that keeps failing, so callers
// degrade immediately instead of stacking up timeouts.
type CircuitBreaker struct {
	cfg Config

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	inFlight  int
	openUntil time.Time

	onStateChange func(from, to State)
}

func New(cfg Config) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// OnStateChange registers a transition observer, invoked asynchronously.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	cb.onStateChange = fn
	cb.mu.Unlock()
}

// Execute runs fn unless the circuit is shedding load. A context already
// cancelled counts as a rejection, not a dependency failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cb.admit() {
		return fmt.Errorf("%w, call rejected", ErrOpen)
	}

	err := fn()
	cb.settle(err == nil)
	if err != nil {
		return fmt.Errorf("call failed: %w", err)
	}
	return nil
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Now().Before(cb.openUntil) {
			return false
		}
		cb.moveTo(StateHalfOpen)
		cb.inFlight = 1
		return true
	case StateHalfOpen:
		if cb.inFlight >= cb.cfg.HalfOpenLimit {
			return false
		}
		cb.inFlight++
		return true
	}
	return false
}

func (cb *CircuitBreaker) settle(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}

	if !ok {
		cb.successes = 0
		cb.failures++
		switch {
		case cb.state == StateHalfOpen:
			// One failed probe re-opens immediately.
			cb.trip()
		case cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold:
			cb.trip()
		}
		return
	}

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.moveTo(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) trip() {
	cb.openUntil = time.Now().Add(cb.cfg.CoolDown)
	cb.moveTo(StateOpen)
}

func (cb *CircuitBreaker) moveTo(next State) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.failures = 0
	cb.successes = 0
	cb.inFlight = 0
	if cb.onStateChange != nil {
		go cb.onStateChange(prev, next)
	}
}
