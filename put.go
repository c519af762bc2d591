package tiercache

import (
	"context"
)

// Put writes value directly into both tiers, bypassing the loader path —
// used by callers that already have a fresh value (e.g. after a successful
// write to the system of record) and want to populate the cache eagerly.
// Both writes happen inside a single AsyncScheduler task, SharedTier first,
// matching every other write-behind path in the engine.
func Put[T any](ctx context.Context, e *Engine, key string, value T) {
	schedulePopulateValue(e, key, value)
}
