// Package breaker implements the CircuitBreaker wrapper described for the
// SharedTier: it decorates any tier-shaped dependency and trips open once
// the share of failed calls (slow calls count as failures) reaches
// FailureRateThreshold, shedding load back to the LocalTier/loader path
// instead of piling up against a struggling SharedTier. The counts are not a
// sliding window: they accumulate from the last state change.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// Unavailable is returned in place of the delegate's own error while the
// breaker is open, so callers can distinguish "the shared tier itself
// failed" from "we declined to even try it."
type Unavailable struct{ Err error }

func (e *Unavailable) Error() string { return fmt.Sprintf("breaker: open: %v", e.Err) }
func (e *Unavailable) Unwrap() error { return e.Err }

// Config configures the breaker's trip and recovery behavior.
type Config struct {
	Name                     string
	FailureRateThreshold     float64       // fraction of calls, e.g. 0.5
	SlowCallRateThreshold    float64       // fraction of calls; not consulted by the trip check
	SlowCallDurationThreshold time.Duration
	MinimumThroughput        uint32 // calls required before ReadyToTrip evaluates
	WaitDurationInOpenState  time.Duration
	HalfOpenMaxCalls         uint32
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "sharedtier"
	}
	if c.FailureRateThreshold <= 0 {
		c.FailureRateThreshold = 0.5
	}
	if c.SlowCallDurationThreshold <= 0 {
		c.SlowCallDurationThreshold = 500 * time.Millisecond
	}
	if c.MinimumThroughput == 0 {
		c.MinimumThroughput = 10
	}
	if c.WaitDurationInOpenState <= 0 {
		c.WaitDurationInOpenState = 10 * time.Second
	}
	if c.HalfOpenMaxCalls == 0 {
		c.HalfOpenMaxCalls = 3
	}
	return c
}

// Breaker decorates a delegate call, classifying calls that exceed
// SlowCallDurationThreshold as failures even when they eventually succeed,
// since gobreaker's own Counts only tracks success/failure, not duration.
type Breaker struct {
	cb  *gobreaker.CircuitBreaker
	cfg Config
	// onStateChange is invoked whenever the breaker's state machine moves,
	// wired to metrics.Recorder by the engine at construction time.
	onStateChange func(from, to string)
}

// New constructs a Breaker.
func New(cfg Config) *Breaker {
	cfg = cfg.withDefaults()
	b := &Breaker{cfg: cfg}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenMaxCalls,
		Timeout:     cfg.WaitDurationInOpenState,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinimumThroughput {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRateThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if b.onStateChange != nil {
				b.onStateChange(from.String(), to.String())
			}
		},
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// OnStateChange registers a callback invoked on every state transition.
func (b *Breaker) OnStateChange(fn func(from, to string)) { b.onStateChange = fn }

// State returns the breaker's current state name.
func (b *Breaker) State() string { return b.cb.State().String() }

// Execute runs fn through the breaker, classifying calls slower than the
// configured threshold as failures regardless of their returned error.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		start := time.Now()
		callErr := fn(ctx)
		if callErr == nil && time.Since(start) >= b.cfg.SlowCallDurationThreshold {
			return nil, fmt.Errorf("slow call exceeded %s", b.cfg.SlowCallDurationThreshold)
		}
		return nil, callErr
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &Unavailable{Err: err}
		}
		return err
	}
	return nil
}

// Call runs fn through the breaker and returns its value, for delegate
// operations that produce a result rather than just an error (SharedTier's
// Get/GetAll). Slow-but-successful calls are classified as failures for the
// breaker's bookkeeping; their value is still returned, together with the
// slow-call error.
func Call[T any](b *Breaker, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	result, err := b.cb.Execute(func() (any, error) {
		start := time.Now()
		val, callErr := fn(ctx)
		if callErr == nil && time.Since(start) >= b.cfg.SlowCallDurationThreshold {
			return val, fmt.Errorf("slow call exceeded %s", b.cfg.SlowCallDurationThreshold)
		}
		return val, callErr
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, &Unavailable{Err: err}
		}
		// result may still hold a valid value even though we classified the
		// call as a (slow) failure for breaker bookkeeping purposes.
		if result != nil {
			if v, ok := result.(T); ok {
				return v, err
			}
		}
		return zero, err
	}
	return result.(T), nil
}
