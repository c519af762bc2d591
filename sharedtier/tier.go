// Package sharedtier implements the SharedTier over Redis: a network-shared
// store with TTL, plus the pub/sub facility the invalidation bus rides on.
package sharedtier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReadFault wraps a failure while reading from the shared tier.
type ReadFault struct{ Key string; Err error }

func (e *ReadFault) Error() string { return fmt.Sprintf("sharedtier: read %q: %v", e.Key, e.Err) }
func (e *ReadFault) Unwrap() error { return e.Err }

// WriteFault wraps a failure while writing to the shared tier.
type WriteFault struct{ Key string; Err error }

func (e *WriteFault) Error() string { return fmt.Sprintf("sharedtier: write %q: %v", e.Key, e.Err) }
func (e *WriteFault) Unwrap() error { return e.Err }

// Config configures the Redis-backed SharedTier.
type Config struct {
	Addr               string
	Password           string
	DB                 int
	InvalidationChannel string
}

// Tier is the SharedTier, backed by a redis.Client. Any type implementing
// redis.UniversalClient (the real client, or one pointed at a miniredis
// server in tests) can be substituted via NewWithClient; the wider interface
// is needed because Subscribe is not part of redis.Cmdable.
type Tier struct {
	rdb     redis.UniversalClient
	channel string
}

// New connects to Redis per Config.
func New(cfg Config) *Tier {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(rdb, cfg.InvalidationChannel)
}

// NewWithClient builds a Tier around an already-constructed client — used by
// tests to inject a miniredis-backed client.
func NewWithClient(rdb redis.UniversalClient, channel string) *Tier {
	if channel == "" {
		channel = "tiercache:invalidate"
	}
	return &Tier{rdb: rdb, channel: channel}
}

// Get fetches the raw encoded bytes for key. ok is false on a clean miss;
// err is non-nil only for a genuine tier fault.
func (t *Tier) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	b, err := t.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &ReadFault{Key: key, Err: err}
	}
	return b, true, nil
}

// Put writes the raw encoded bytes for key with the given TTL.
func (t *Tier) Put(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := t.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return &WriteFault{Key: key, Err: err}
	}
	return nil
}

// Evict deletes key and publishes its invalidation to the shared channel so
// other processes' LocalTiers can follow suit. The publish is attempted even
// if the delete fails, since other processes still need to hear about the
// intended invalidation.
func (t *Tier) Evict(ctx context.Context, key string) error {
	delErr := t.rdb.Del(ctx, key).Err()
	pubErr := t.rdb.Publish(ctx, t.channel, key).Err()
	if delErr != nil || pubErr != nil {
		return &WriteFault{Key: key, Err: errors.Join(delErr, pubErr)}
	}
	return nil
}

// GetAll performs a batched read of multiple keys via MGET. The returned map
// contains only keys that were present.
func (t *Tier) GetAll(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	vals, err := t.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, &ReadFault{Key: fmt.Sprintf("%v", keys), Err: err}
	}
	out := make(map[string][]byte, len(keys))
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[keys[i]] = []byte(s)
	}
	return out, nil
}

// PutAll writes multiple entries in a single pipeline.
func (t *Tier) PutAll(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := t.rdb.Pipeline()
	for k, v := range entries {
		pipe.Set(ctx, k, v, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &WriteFault{Key: "batch", Err: err}
	}
	return nil
}

// EvictAll deletes multiple keys and publishes each invalidation.
func (t *Tier) EvictAll(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	pipe := t.rdb.Pipeline()
	pipe.Del(ctx, keys...)
	for _, k := range keys {
		pipe.Publish(ctx, t.channel, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &WriteFault{Key: "batch", Err: err}
	}
	return nil
}

// Subscribe returns a PubSub subscribed to the invalidation channel, for use
// by invalidation.Bus.
func (t *Tier) Subscribe(ctx context.Context) *redis.PubSub {
	return t.rdb.Subscribe(ctx, t.channel)
}

// Channel returns the configured invalidation channel name.
func (t *Tier) Channel() string { return t.channel }

// Ping verifies connectivity, used by the Inspection shim's probe operation.
func (t *Tier) Ping(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}
