// Package resilience keeps speech synthesis available when TTS backends
// misbehave.
//
// [CircuitBreaker] stops calling a backend after repeated failures and probes
// it again once a cool-down has passed. [FallbackGroup] chains backends of one
// type, each behind its own breaker, and [TTSFallback] applies that to
// streaming synthesis, where a stream that ends silent is a failure.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling through while a breaker is open
// or its probe budget is spent.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has passed.
	StateOpen

	// StateHalfOpen admits a bounded number of probes. Enough successes close
	// the breaker, a single failure opens it again.
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
	default:
		return "unknown"
	}
}

// Breaker defaults.
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 3
)

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take defaults.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and hooks.
	Name string

	// MaxFailures is the run of consecutive failures that opens a closed
	// breaker. Default [DefaultMaxFailures].
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default
	// [DefaultResetTimeout].
	ResetTimeout time.Duration

	// HalfOpenMax is both the number of probes admitted while half-open and
	// the number of successful probes that close the breaker. Default
	// [DefaultHalfOpenMax].
	HalfOpenMax int

	// IsFailure decides whether an error counts against the backend. The
	// default counts everything except [context.Canceled]: an item stopped
	// mid-synthesis says nothing about the backend.
	IsFailure func(error) bool

	// OnStateChange runs after every transition, outside the breaker lock.
	// It must not block.
	OnStateChange func(name string, from, to State)

	// Logger receives transition logs. Default [slog.Default].
	Logger *slog.Logger

	// Clock returns the current time. Default [time.Now].
	Clock func() time.Time
}

// CircuitBreaker is a closed, open and half-open breaker around one backend.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
	probeOK  int
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultHalfOpenMax
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = countsAsFailure
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

func countsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Name returns the configured label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute calls fn unless the breaker rejects it, and returns fn's error.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, notify, err := cb.admit()
	notify()
	if err != nil {
		return err
	}

	err = fn()

	cb.mu.Lock()
	notify = cb.settle(probe, err)
	cb.mu.Unlock()
	notify()
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, notify func(), err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	notify = func() {}
	if cb.state == StateOpen {
		if cb.cfg.Clock().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, notify, ErrCircuitOpen
		}
		cb.probes, cb.probeOK = 0, 0
		notify = cb.transition(StateHalfOpen)
		cb.cfg.Logger.Info("circuit breaker probing", "name", cb.cfg.Name)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			return false, notify, ErrCircuitOpen
		}
		cb.probes++
		return true, notify, nil
	}
	return false, notify, nil
}

// settle books the outcome of an admitted call. cb.mu must be held.
func (cb *CircuitBreaker) settle(probe bool, err error) func() {
	probe = probe && cb.state == StateHalfOpen

	switch {
	case err != nil && cb.cfg.IsFailure(err):
		if probe {
			cb.openedAt = cb.cfg.Clock()
			cb.cfg.Logger.Warn("circuit breaker probe failed", "name", cb.cfg.Name, "err", err)
			return cb.transition(StateOpen)
		}
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
			cb.openedAt = cb.cfg.Clock()
			cb.cfg.Logger.Warn("circuit breaker opened",
				"name", cb.cfg.Name,
				"consecutive_failures", cb.failures,
				"err", err)
			return cb.transition(StateOpen)
		}

	case err != nil:
		// Neutral outcome. A probe slot is handed back.
		if probe {
			cb.probes--
		}

	case probe:
		cb.probeOK++
		if cb.probeOK >= cb.cfg.HalfOpenMax {
			cb.failures = 0
			cb.cfg.Logger.Info("circuit breaker closed", "name", cb.cfg.Name)
			return cb.transition(StateClosed)
		}

	default:
		cb.failures = 0
	}
	return func() {}
}

// transition sets the state and returns the pending hook call. cb.mu must
// be held.
func (cb *CircuitBreaker) transition(to State) func() {
	from := cb.state
	cb.state = to
	hook := cb.cfg.OnStateChange
	if from == to || hook == nil {
		return func() {}
	}
	name := cb.cfg.Name
	return func() { hook(name, from, to) }
}

// State returns the current state. An open breaker whose timeout has passed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Clock().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.failures, cb.probes, cb.probeOK = 0, 0, 0
	notify := cb.transition(StateClosed)
	cb.mu.Unlock()

	cb.cfg.Logger.Info("circuit breaker reset", "name", cb.cfg.Name)
	notify()
}
