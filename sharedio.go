package tiercache

import (
	"context"
	"time"

	"github.com/kestrelcache/tiercache/breaker"
	"github.com/kestrelcache/tiercache/cachetype"
	"github.com/kestrelcache/tiercache/codec"
	"github.com/kestrelcache/tiercache/localtier"
)

// getShared reads key from the SharedTier through the circuit breaker,
// decoding the stored bytes via the Codec and type-checking the result
// against tok. absent is true when the stored bytes are the AbsentMarker
// sentinel rather than an encoded value of T.
func getShared[T any](ctx context.Context, e *Engine, key string, tok cachetype.Token[T]) (value T, found bool, absent bool, err error) {
	var zero T
	timer := func() {}
	if e.rec != nil {
		timer = e.rec.Timer("shared", "get")
	}
	defer timer()

	type rawResult struct {
		data  []byte
		found bool
	}
	raw, callErr := breaker.Call(e.brk, ctx, func(ctx context.Context) (rawResult, error) {
		data, found, err := e.shared.Get(ctx, key)
		return rawResult{data: data, found: found}, err
	})
	if callErr != nil {
		e.recordFault("shared", "get", callErr)
		return zero, false, false, callErr
	}
	if !raw.found {
		return zero, false, false, nil
	}
	if codec.IsAbsent(raw.data) {
		return zero, false, true, nil
	}
	v, decErr := codec.Decode(raw.data, tok)
	if decErr != nil {
		e.recordFault("shared", "get", decErr)
		return zero, false, false, decErr
	}
	return v, true, false, nil
}

// putShared writes value to the SharedTier through the breaker.
func putShared[T any](ctx context.Context, e *Engine, key string, value T) {
	data, err := codec.Encode(value)
	if err != nil {
		e.recordFault("shared", "put", err)
		return
	}
	if e.rec != nil {
		e.rec.ObservePayloadSize("put", len(data))
	}
	ttl := e.cfg.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	err = e.brk.Execute(ctx, func(ctx context.Context) error {
		return e.shared.Put(ctx, key, data, ttl)
	})
	if err != nil {
		e.recordFault("shared", "put", err)
	}
}

// putSharedAbsent writes the AbsentMarker sentinel to the SharedTier through
// the breaker, using the negative-cache TTL so other processes honor the
// confirmed absence for a shorter window than a real value.
func putSharedAbsent(ctx context.Context, e *Engine, key string) {
	ttl := e.cfg.NegativeCacheTTL
	if ttl <= 0 {
		ttl = e.cfg.DefaultTTL
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	err := e.brk.Execute(ctx, func(ctx context.Context) error {
		return e.shared.Put(ctx, key, codec.AbsentBytes(), ttl)
	})
	if err != nil {
		e.recordFault("shared", "put", err)
	}
}

// schedulePopulateValue schedules the single async task spec.md's population
// ordering requires: L2 write, then L1 write, for a freshly loaded value.
func schedulePopulateValue[T any](e *Engine, key string, value T) {
	e.sched.Submit(func(bgCtx context.Context) {
		if e.shared != nil {
			putShared(bgCtx, e, key, value)
		}
		localtier.Put(e.local, key, value)
	})
}

// schedulePopulateAbsent is schedulePopulateValue's counterpart for a
// loader-confirmed absence: the AbsentMarker is written to L2 before L1.
func schedulePopulateAbsent(e *Engine, key string) {
	e.sched.Submit(func(bgCtx context.Context) {
		if e.shared != nil {
			putSharedAbsent(bgCtx, e, key)
		}
		e.local.PutAbsent(key)
	})
}

// schedulePromoteLocal schedules the async L1.put spec.md's L2-hit path
// calls for (§4.7 step 2): the value already lives in L2, so only L1 needs
// writing.
func schedulePromoteLocal[T any](e *Engine, key string, value T) {
	e.sched.Submit(func(bgCtx context.Context) {
		localtier.Put(e.local, key, value)
	})
}

// schedulePromoteLocalAbsent is schedulePromoteLocal's counterpart when the
// L2 hit was itself the AbsentMarker.
func schedulePromoteLocalAbsent(e *Engine, key string) {
	e.sched.Submit(func(bgCtx context.Context) {
		e.local.PutAbsent(key)
	})
}

func (e *Engine) recordFault(level, operation string, err error) {
	if e.rec != nil {
		e.rec.ObserveError(level, operation, faultTypeName(err))
	}
	e.log.Error("tier operation failed", zapFields(level, operation, err)...)
}
