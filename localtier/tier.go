// Package localtier implements the in-process LocalTier: a bounded,
// type-checked cache backed by hashicorp/golang-lru's expirable LRU.
//
// Eviction policy (size and recency) is delegated entirely to the
// underlying library; this package only adds the type-token check on read
// and the absence-sentinel awareness the engine needs.
package localtier

import (
	"reflect"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kestrelcache/tiercache/cachetype"
)

// Config mirrors the declarative knobs spec'd for the LocalTier. The
// underlying library supports a single expiry duration, so expireAfterWrite
// and expireAfterAccess are reconciled down to whichever is shorter, and
// that duration counts from the last write (a read does not extend it).
type Config struct {
	MaximumSize       int
	ExpireAfterWrite  time.Duration
	ExpireAfterAccess time.Duration
	RecordStats       bool

	// Disabled turns the LocalTier into a pass-through that never stores
	// anything — every Get is a clean miss and every Put/PutAbsent/Evict
	// is a no-op. Used when a caller wants SharedTier-only (or no) caching.
	Disabled bool
}

func (c Config) ttl() time.Duration {
	switch {
	case c.ExpireAfterWrite <= 0:
		return c.ExpireAfterAccess
	case c.ExpireAfterAccess <= 0:
		return c.ExpireAfterWrite
	case c.ExpireAfterAccess < c.ExpireAfterWrite:
		return c.ExpireAfterAccess
	default:
		return c.ExpireAfterWrite
	}
}

type stored struct {
	value any
	typ   reflect.Type
}

// Stats tracks LocalTier hit/miss counts when Config.RecordStats is set.
type Stats struct {
	mu     sync.Mutex
	Hits   int64
	Misses int64
}

func (s *Stats) hit() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Hits++
	s.mu.Unlock()
}

func (s *Stats) miss() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Misses++
	s.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() (hits, misses int64) {
	if s == nil {
		return 0, 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Hits, s.Misses
}

// Tier is the LocalTier. A Tier with disabled set is a pass-through: lru is
// left nil and every operation is a no-op or clean miss.
type Tier struct {
	lru      *lru.LRU[string, stored]
	stats    *Stats
	disabled bool
}

// New constructs a LocalTier from Config.
func New(cfg Config) *Tier {
	if cfg.Disabled {
		return &Tier{disabled: true}
	}
	size := cfg.MaximumSize
	if size <= 0 {
		size = 10000
	}
	t := &Tier{lru: lru.NewLRU[string, stored](size, nil, cfg.ttl())}
	if cfg.RecordStats {
		t.stats = &Stats{}
	}
	return t
}

// Get returns the value stored for key if present and type-compatible with
// the token. found is false on a clean miss or a type mismatch (treated
// identically — never an error or panic). absent is true when the stored
// entry is the confirmed-absence sentinel, in which case value is the zero
// value of T and found is false.
func Get[T any](t *Tier, key string, tok cachetype.Token[T]) (value T, found bool, absent bool) {
	var zero T
	if t.disabled {
		return zero, false, false
	}
	v, ok := t.lru.Get(key)
	if !ok {
		t.stats.miss()
		return zero, false, false
	}
	if cachetype.IsAbsent(v.value) {
		t.stats.hit()
		return zero, false, true
	}
	if !cachetype.Erase(tok).Matches(v.typ) {
		t.stats.miss()
		return zero, false, false
	}
	t.stats.hit()
	return v.value.(T), true, false
}

// Put stores value under key, recording its concrete type for later
// type-checked reads.
func Put[T any](t *Tier, key string, value T) {
	if t.disabled {
		return
	}
	t.lru.Add(key, stored{value: value, typ: reflect.TypeOf(value)})
}

// PutAbsent records a confirmed absence for key.
func (t *Tier) PutAbsent(key string) {
	if t.disabled {
		return
	}
	t.lru.Add(key, stored{value: cachetype.WrapAbsent()})
}

// Evict removes key.
func (t *Tier) Evict(key string) {
	if t.disabled {
		return
	}
	t.lru.Remove(key)
}

// Len returns the current number of entries.
func (t *Tier) Len() int {
	if t.disabled {
		return 0
	}
	return t.lru.Len()
}

// Stats returns the tier's hit/miss counters. The returned *Stats is nil
// when Config.RecordStats was false; Snapshot handles a nil receiver.
func (t *Tier) Stats() *Stats { return t.stats }

// Keys returns a snapshot of all keys currently held, oldest first. Used by
// invalidation.Matcher to evaluate patterns richer than a plain prefix.
func (t *Tier) Keys() []string {
	if t.disabled {
		return nil
	}
	return t.lru.Keys()
}

// Purge clears the tier entirely.
func (t *Tier) Purge() {
	if t.disabled {
		return
	}
	t.lru.Purge()
}
