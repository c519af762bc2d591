package localtier

import (
	"testing"
	"time"

	"github.com/kestrelcache/tiercache/cachetype"
)

func TestPutGetRoundTrip(t *testing.T) {
	tier := New(Config{MaximumSize: 10, ExpireAfterWrite: time.Minute})
	Put(tier, "k1", "hello")

	v, found, absent := Get(tier, "k1", cachetype.TokenOf[string]())
	if !found || absent {
		t.Fatalf("expected found=true absent=false, got found=%v absent=%v", found, absent)
	}
	if v != "hello" {
		t.Fatalf("expected hello, got %q", v)
	}
}

func TestGetTypeMismatchIsMiss(t *testing.T) {
	tier := New(Config{MaximumSize: 10, ExpireAfterWrite: time.Minute})
	Put(tier, "k1", "hello")

	_, found, absent := Get(tier, "k1", cachetype.TokenOf[int]())
	if found || absent {
		t.Fatalf("expected a type-mismatched read to be a clean miss, got found=%v absent=%v", found, absent)
	}
}

func TestPutAbsentThenGetReportsAbsent(t *testing.T) {
	tier := New(Config{MaximumSize: 10, ExpireAfterWrite: time.Minute})
	tier.PutAbsent("missing")

	_, found, absent := Get(tier, "missing", cachetype.TokenOf[string]())
	if found || !absent {
		t.Fatalf("expected found=false absent=true, got found=%v absent=%v", found, absent)
	}
}

func TestEvictRemovesEntry(t *testing.T) {
	tier := New(Config{MaximumSize: 10, ExpireAfterWrite: time.Minute})
	Put(tier, "k1", 42)
	tier.Evict("k1")

	_, found, absent := Get(tier, "k1", cachetype.TokenOf[int]())
	if found || absent {
		t.Fatal("expected evicted key to be a clean miss")
	}
}

func TestMaximumSizeEvictsLeastRecentlyUsed(t *testing.T) {
	tier := New(Config{MaximumSize: 2, ExpireAfterWrite: time.Minute})
	Put(tier, "a", 1)
	Put(tier, "b", 2)
	Put(tier, "c", 3) // should evict "a"

	if _, found, _ := Get(tier, "a", cachetype.TokenOf[int]()); found {
		t.Fatal("expected least-recently-used entry to be evicted")
	}
	if _, found, _ := Get(tier, "c", cachetype.TokenOf[int]()); !found {
		t.Fatal("expected most recently written entry to survive")
	}
}

func TestStatsTrackHitsAndMisses(t *testing.T) {
	tier := New(Config{MaximumSize: 10, ExpireAfterWrite: time.Minute, RecordStats: true})
	Put(tier, "k1", "v")
	Get(tier, "k1", cachetype.TokenOf[string]())
	Get(tier, "missing", cachetype.TokenOf[string]())

	hits, misses := tier.Stats().Snapshot()
	if hits != 1 || misses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got hits=%d misses=%d", hits, misses)
	}
}
