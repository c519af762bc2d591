package tiercache

import (
	"context"

	"github.com/kestrelcache/tiercache/breaker"
	"github.com/kestrelcache/tiercache/cachetype"
	"github.com/kestrelcache/tiercache/codec"
	"github.com/kestrelcache/tiercache/localtier"
)

// GetOrLoadAll is the batch read-through operation (§4.7): for each key not
// already in the LocalTier, it attempts a single batched SharedTier lookup,
// then invokes loader once for every key still missing. The loader receives
// exactly the keys that were absent from both tiers. Keys the loader does
// not return are confirmed absences and are cached as such (§4.7 step 4),
// not silently dropped.
//
// Population is a single scheduled task per §4.7 step 5/§5's ordering
// guarantee: it writes the store map (everything the loader resolved, values
// and absences alike) to the SharedTier before writing the union of the
// SharedTier-promoted map and the store map to the LocalTier.
func GetOrLoadAll[T any](ctx context.Context, e *Engine, keys []string, loader func(context.Context, []string) (map[string]T, error)) (map[string]T, error) {
	tok := cachetype.TokenOf[T]()
	out := make(map[string]T, len(keys))
	var missing []string

	for _, k := range keys {
		if v, found, absent := localtier.Get[T](e.local, k, tok); found {
			out[k] = v
		} else if !absent {
			missing = append(missing, k)
		}
		// absent keys are deliberately omitted from out and from missing:
		// a confirmed absence is neither a value nor something to reload.
	}
	if len(missing) == 0 {
		return out, nil
	}

	promotedValues := map[string]T{}
	var promotedAbsent []string
	if e.shared != nil {
		raw, err := breaker.Call(e.brk, ctx, func(ctx context.Context) (map[string][]byte, error) {
			return e.shared.GetAll(ctx, missing)
		})
		if err != nil {
			e.recordFault("shared", "get_all", err)
		} else {
			stillMissing := missing[:0:0]
			for _, k := range missing {
				data, ok := raw[k]
				if !ok {
					stillMissing = append(stillMissing, k)
					continue
				}
				if codec.IsAbsent(data) {
					promotedAbsent = append(promotedAbsent, k)
					continue
				}
				v, err := codec.Decode(data, tok)
				if err != nil {
					e.recordFault("shared", "get_all", err)
					stillMissing = append(stillMissing, k)
					continue
				}
				promotedValues[k] = v
				out[k] = v
			}
			missing = stillMissing
		}
	}

	loadedValues := map[string]T{}
	var loadedAbsent []string
	if len(missing) > 0 {
		loaded, err := loader(ctx, missing)
		if err != nil {
			return nil, &LoadFault{Key: "batch", Err: err}
		}
		for _, k := range missing {
			if v, ok := loaded[k]; ok {
				loadedValues[k] = v
				out[k] = v
			} else {
				loadedAbsent = append(loadedAbsent, k)
			}
		}
	}

	if len(promotedValues) > 0 || len(promotedAbsent) > 0 || len(loadedValues) > 0 || len(loadedAbsent) > 0 {
		e.sched.Submit(func(bgCtx context.Context) {
			populateBatch(bgCtx, e, promotedValues, promotedAbsent, loadedValues, loadedAbsent)
		})
	}
	return out, nil
}

// populateBatch is the single async task §4.7 step 5 describes: the store
// map (loadedValues/loadedAbsent) is written to the SharedTier first, then
// the union of the promotion map and the store map is written to the
// LocalTier.
func populateBatch[T any](ctx context.Context, e *Engine, promotedValues map[string]T, promotedAbsent []string, loadedValues map[string]T, loadedAbsent []string) {
	if e.shared != nil && (len(loadedValues) > 0 || len(loadedAbsent) > 0) {
		putSharedBatch(ctx, e, loadedValues, loadedAbsent)
	}
	for k, v := range promotedValues {
		localtier.Put(e.local, k, v)
	}
	for _, k := range promotedAbsent {
		e.local.PutAbsent(k)
	}
	for k, v := range loadedValues {
		localtier.Put(e.local, k, v)
	}
	for _, k := range loadedAbsent {
		e.local.PutAbsent(k)
	}
}

func putSharedBatch[T any](ctx context.Context, e *Engine, values map[string]T, absentKeys []string) {
	encoded := make(map[string][]byte, len(values)+len(absentKeys))
	for k, v := range values {
		data, err := codec.Encode(v)
		if err != nil {
			e.recordFault("shared", "put_all", err)
			continue
		}
		encoded[k] = data
	}
	for _, k := range absentKeys {
		encoded[k] = codec.AbsentBytes()
	}
	ttl := e.cfg.DefaultTTL
	err := e.brk.Execute(ctx, func(ctx context.Context) error {
		return e.shared.PutAll(ctx, encoded, ttl)
	})
	if err != nil {
		e.recordFault("shared", "put_all", err)
	}
}
