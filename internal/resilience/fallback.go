package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrAllFailed wraps the per-backend errors when no entry of a
	// [FallbackGroup] succeeded.
	ErrAllFailed = errors.New("all providers failed")

	// ErrUnknownBackend is returned by [FallbackGroup.Reset] for a name that
	// was never registered.
	ErrUnknownBackend = errors.New("unknown backend")
)

// FallbackConfig is the template for the breaker of every entry. Its Name is
// replaced by the entry name; its Logger also receives failover logs.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup tries backends of one type in registration order, skipping
// those whose breaker is open. Entries must all be added before the group is
// used concurrently.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
	log     *slog.Logger
}

// NewFallbackGroup returns a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	if cfg.CircuitBreaker.Logger == nil {
		cfg.CircuitBreaker.Logger = slog.Default()
	}
	g := &FallbackGroup[T]{cfg: cfg, log: cfg.CircuitBreaker.Logger}
	g.AddFallback(primaryName, primary)
	return g
}

// AddFallback appends a backend behind a fresh breaker.
func (g *FallbackGroup[T]) AddFallback(name string, v T) {
	bc := g.cfg.CircuitBreaker
	bc.Name = name
	g.entries = append(g.entries, fallbackEntry[T]{name: name, value: v, breaker: NewCircuitBreaker(bc)})
}

// Execute runs fn against each entry until one returns nil.
func (g *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(g, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult runs fn against each entry until one succeeds and returns
// its result. An error the breakers do not count as a failure, such as a
// cancellation, stops the walk and is returned as is. When every entry fails
// the result wraps [ErrAllFailed] and each entry's error.
func ExecuteWithResult[T, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range g.entries {
		e := &g.entries[i]
		var res R
		err := e.breaker.Execute(func() error {
			var ferr error
			res, ferr = fn(e.value)
			return ferr
		})
		switch {
		case err == nil:
			if len(errs) > 0 {
				g.log.Info("served by fallback provider", "provider", e.name, "skipped", len(errs))
			}
			return res, nil
		case errors.Is(err, ErrCircuitOpen):
			g.log.Debug("provider circuit open, skipping", "provider", e.name)
		case !g.countsAsFailure(err):
			return zero, err
		default:
			g.log.Warn("provider failed, trying next", "provider", e.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

func (g *FallbackGroup[T]) countsAsFailure(err error) bool {
	if f := g.cfg.CircuitBreaker.IsFailure; f != nil {
		return f(err)
	}
	return countsAsFailure(err)
}

// BreakerStatus is a snapshot of one entry's breaker.
type BreakerStatus struct {
	Name  string
	State State
}

// Status returns every entry's breaker state in failover order.
func (g *FallbackGroup[T]) Status() []BreakerStatus {
	out := make([]BreakerStatus, len(g.entries))
	for i, e := range g.entries {
		out[i] = BreakerStatus{Name: e.name, State: e.breaker.State()}
	}
	return out
}

// Healthy reports whether any entry would currently admit a call.
func (g *FallbackGroup[T]) Healthy() bool {
	for _, e := range g.entries {
		if e.breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Reset closes the breaker of the named entry.
func (g *FallbackGroup[T]) Reset(name string) error {
	for _, e := range g.entries {
		if e.name == name {
			e.breaker.Reset()
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}
