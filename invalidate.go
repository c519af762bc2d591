package tiercache

import "context"

// Invalidate removes a single key from both tiers. The work is dispatched to
// the AsyncScheduler (§4.7, §5): the caller does not block on either tier,
// and a SharedTier fault is logged and swallowed rather than surfaced,
// since a failure in one tier must not prevent the other from being
// attempted. The SharedTier evict (and its publish to other processes) is
// still attempted before the LocalTier evict, so a concurrent GetOrLoad on
// another process can't repopulate its LocalTier from stale SharedTier data
// after this process has already evicted locally.
func (e *Engine) Invalidate(ctx context.Context, key string) {
	e.sched.Submit(func(bgCtx context.Context) {
		invalidateOne(bgCtx, e, key)
	})
}

// InvalidateAll removes every given key, per Invalidate's ordering.
func (e *Engine) InvalidateAll(ctx context.Context, keys []string) {
	e.sched.Submit(func(bgCtx context.Context) {
		invalidateAllOne(bgCtx, e, keys)
	})
}

func invalidateOne(ctx context.Context, e *Engine, key string) {
	if e.shared != nil {
		err := e.brk.Execute(ctx, func(ctx context.Context) error {
			return e.shared.Evict(ctx, key)
		})
		if err != nil {
			e.recordFault("shared", "evict", err)
		}
	}
	e.local.Evict(key)
	if e.bus != nil {
		e.bus.RecordLocal([]string{key}, "", "caller")
	}
}

func invalidateAllOne(ctx context.Context, e *Engine, keys []string) {
	if e.shared != nil {
		err := e.brk.Execute(ctx, func(ctx context.Context) error {
			return e.shared.EvictAll(ctx, keys)
		})
		if err != nil {
			e.recordFault("shared", "evict_all", err)
		}
	}
	for _, k := range keys {
		e.local.Evict(k)
	}
	if e.bus != nil {
		e.bus.RecordLocal(keys, "", "caller")
	}
}

// InvalidateMatching is the supplemental pattern-based invalidation
// convenience (adapted from the teacher's invalidation/patterns.go): it
// evaluates pattern against the LocalTier's current key set and invalidates
// every match. Because the SharedTier has no efficient way to enumerate its
// keys for matching, this only reaches keys the LocalTier currently knows
// about — callers needing exhaustive SharedTier-side pattern eviction
// should track their own key sets and call InvalidateAll directly.
func (e *Engine) InvalidateMatching(ctx context.Context, pattern string) (int, error) {
	if err := e.matcher.Validate(pattern); err != nil {
		return 0, err
	}
	keys := e.local.Keys()
	matches := e.matcher.Match(pattern, keys)
	if len(matches) == 0 {
		return 0, nil
	}
	e.InvalidateAll(ctx, matches)
	return len(matches), nil
}
