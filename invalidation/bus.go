package invalidation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrelcache/tiercache/sharedtier"
)

// Evictor is the part of the LocalTier contract the bus needs: removing a
// key on receipt of a remote invalidation.
type Evictor interface {
	Evict(key string)
}

// Bus listens for invalidation events published by any process's SharedTier
// and applies them to the local LocalTier, per spec.md §4.6.
type Bus struct {
	shared *sharedtier.Tier
	local  Evictor
	log    *zap.Logger
	audit  *auditLog

	cancel context.CancelFunc
	done   chan struct{}
}

// Config configures the bus's audit-log retention.
type Config struct {
	AuditCapacity int
}

// New constructs a Bus. local may be nil if no LocalTier is configured, in
// which case incoming events are recorded to the audit log and dropped.
func New(shared *sharedtier.Tier, local Evictor, log *zap.Logger, cfg Config) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		shared: shared,
		local:  local,
		log:    log,
		audit:  newAuditLog(cfg.AuditCapacity),
	}
}

// Start begins listening for invalidation events in a background goroutine.
// Call Stop to shut it down.
func (b *Bus) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})

	sub := b.shared.Subscribe(ctx)
	go func() {
		defer close(b.done)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.handle(msg.Payload)
			}
		}
	}()
}

// Stop halts the subscription loop and waits for it to exit.
func (b *Bus) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
}

func (b *Bus) handle(key string) {
	if b.local != nil {
		b.local.Evict(key)
	} else {
		b.log.Warn("invalidation received with no local tier configured", zap.String("key", key))
	}
	b.audit.append(Record{
		Keys:        []string{key},
		TriggeredBy: "remote",
		RequestID:   uuid.NewString(),
		Timestamp:   time.Now(),
	})
}

// RecordLocal appends an audit entry for an invalidation originated by this
// process itself (as opposed to one received over the bus).
func (b *Bus) RecordLocal(keys []string, pattern, triggeredBy string) {
	b.audit.append(Record{
		Keys:        keys,
		Pattern:     pattern,
		TriggeredBy: triggeredBy,
		RequestID:   uuid.NewString(),
		Timestamp:   time.Now(),
	})
}

// RecentAudit returns up to limit most-recent invalidation records.
func (b *Bus) RecentAudit(limit int) []Record {
	return b.audit.Recent(limit)
}
