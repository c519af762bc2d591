// Package tiercache is the CoreEngine: the two-tier, read-through,
// write-behind cache described by spec.md, coalescing concurrent loads for
// the same key and caching confirmed absences alongside real values.
package tiercache

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kestrelcache/tiercache/breaker"
	"github.com/kestrelcache/tiercache/cachetype"
	"github.com/kestrelcache/tiercache/invalidation"
	"github.com/kestrelcache/tiercache/localtier"
	"github.com/kestrelcache/tiercache/metrics"
	"github.com/kestrelcache/tiercache/sharedtier"
)

// Engine is the CoreEngine (§4.7): the entry point application code calls
// through for every cache read, write, and invalidation.
type Engine struct {
	local   *localtier.Tier
	shared  *sharedtier.Tier
	brk     *breaker.Breaker
	bus     *invalidation.Bus
	matcher *invalidation.Matcher
	rec     *metrics.Recorder
	log     *zap.Logger
	sched   *scheduler
	group   singleflight.Group
	cfg     Config
}

// Option customizes Engine construction beyond Config.
type Option func(*Engine)

// WithMetrics attaches a metrics.Recorder. Without one, observations are
// no-ops.
func WithMetrics(r *metrics.Recorder) Option { return func(e *Engine) { e.rec = r } }

// WithLogger attaches a *zap.Logger. Without one, a no-op logger is used.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// New constructs an Engine from Config. The SharedTier, its breaker, and the
// invalidation bus are only built when cfg.Shared.Enabled.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		local:   localtier.New(cfg.Local),
		matcher: invalidation.NewMatcher(),
		log:     zap.NewNop(),
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(e)
	}

	if cfg.Shared.Enabled {
		e.shared = sharedtier.New(cfg.Shared.Redis)
		e.brk = breaker.New(cfg.Breaker)
		if e.rec != nil {
			e.brk.OnStateChange(func(from, to string) {
				e.rec.SetBreakerState(cfg.Breaker.Name, to)
				e.log.Info("circuit breaker state change", zap.String("from", from), zap.String("to", to))
			})
		}
		e.bus = invalidation.New(e.shared, e.local, e.log, invalidation.Config{})
		e.bus.Start(context.Background())
	}

	e.sched = newScheduler(cfg.Scheduler, e.log)
	return e
}

// Shutdown stops the invalidation bus and drains the AsyncScheduler.
func (e *Engine) Shutdown() {
	if e.bus != nil {
		e.bus.Stop()
	}
	e.sched.Shutdown()
}

// GetOrLoad is the single-key read-through operation (§4.7, §8): it checks
// the LocalTier, then the SharedTier (through the breaker), then invokes
// loader exactly once per outstanding miss regardless of how many
// goroutines call concurrently for the same key.
func GetOrLoad[T any](ctx context.Context, e *Engine, key string, loader func(context.Context) (T, error)) (T, error) {
	tok := cachetype.TokenOf[T]()
	var zero T

	if v, found, absent := localtier.Get[T](e.local, key, tok); found {
		e.observe("local", "get", "hit")
		return v, nil
	} else if absent {
		e.observe("local", "get", "absent")
		return zero, ErrNotFound
	}

	ch := e.group.DoChan(key, func() (any, error) {
		return loadOne(ctx, e, key, tok, loader)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return zero, &Interruption{Err: ctx.Err()}
	}
	result, err := res.Val, res.Err
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return zero, ErrNotFound
		}
		if ctx.Err() != nil {
			return zero, &Interruption{Err: ctx.Err()}
		}
		return zero, &LoadFault{Key: key, Err: err}
	}
	return result.(T), nil
}

// loadOne runs under the engine's singleflight group for key: try the
// SharedTier, then fall back to loader, populating both tiers on success.
// It is a free function (not a method) because Go methods cannot carry
// their own type parameters beyond the receiver's.
func loadOne[T any](ctx context.Context, e *Engine, key string, tok cachetype.Token[T], loader func(context.Context) (T, error)) (any, error) {
	if e.shared != nil {
		if v, ok, absent, err := getShared(ctx, e, key, tok); err != nil {
			e.log.Warn("shared tier read failed, falling back to loader", zap.String("key", key), zap.Error(err))
		} else if absent {
			e.observe("shared", "get", "absent")
			schedulePromoteLocalAbsent(e, key)
			return nil, ErrNotFound
		} else if ok {
			e.observe("shared", "get", "hit")
			schedulePromoteLocal(e, key, v)
			return v, nil
		} else {
			e.observe("shared", "get", "miss")
		}
	}

	value, err := loader(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.observe("loader", "get", "absent")
			schedulePopulateAbsent(e, key)
			return nil, ErrNotFound
		}
		e.observe("loader", "get", "error")
		return nil, err
	}

	e.observe("loader", "get", "miss")
	schedulePopulateValue(e, key, value)
	return value, nil
}

// observe reports an outcome to the metrics recorder, if one is attached.
func (e *Engine) observe(level, operation, outcome string) {
	if e.rec != nil {
		e.rec.ObserveOutcome(level, operation, outcome)
	}
}
