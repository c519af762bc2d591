package tiercache

import (
	"context"
	"time"

	"github.com/kestrelcache/tiercache/invalidation"
)

// Status is the read-only snapshot the Inspection shim's status operation
// returns (§4.9): counters and sizes, never a mechanism for mutating state.
type Status struct {
	LocalSize        int
	LocalHits        int64
	LocalMisses      int64
	SchedulerActive  int
	SchedulerQueued  int
	SchedulerCallerRuns int64
	BreakerState     string
	RecentInvalidations []invalidation.Record
}

// Status returns a snapshot of the engine's current state.
func (e *Engine) Status() Status {
	hits, misses := e.local.Stats().Snapshot()
	s := Status{
		LocalSize:           e.local.Len(),
		LocalHits:           hits,
		LocalMisses:         misses,
		SchedulerActive:     e.sched.ActiveCount(),
		SchedulerQueued:     e.sched.QueueSize(),
		SchedulerCallerRuns: e.sched.CallerRuns(),
		BreakerState:        "disabled",
	}
	if e.brk != nil {
		s.BreakerState = e.brk.State()
	}
	if e.bus != nil {
		s.RecentInvalidations = e.bus.RecentAudit(50)
	}
	return s
}

// Probe performs a lightweight health check against the SharedTier,
// returning nil when the engine's tiers are reachable (or simply not
// configured, which is a valid running state).
func (e *Engine) Probe(ctx context.Context) error {
	if e.shared == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return e.shared.Ping(ctx)
}

// Evict is the Inspection shim's administrative evict operation: an alias
// of Invalidate, exposed under the shim for operational tooling rather than
// application code.
func (e *Engine) Evict(ctx context.Context, key string) {
	e.Invalidate(ctx, key)
}
