package tiercache

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// task is a unit of write-behind work: a populate, an invalidation fan-out,
// or an L2-to-L1 promotion, each submitted as a plain closure.
type task func(context.Context)

// scheduler is the AsyncScheduler (§4.8): a bounded pool of worker
// goroutines draining a buffered queue, generalized from
// warming/worker_pool.go's WarmTask-specific pool to an arbitrary closure.
//
// Overflow policy is caller-runs (see DESIGN.md Open Question #2): when the
// queue is full, Submit executes the task on the calling goroutine instead
// of blocking indefinitely or dropping it.
type scheduler struct {
	queue       chan task
	wg          sync.WaitGroup
	activeCount atomic.Int32
	callerRuns  atomic.Int64
	log         *zap.Logger

	stop   chan struct{}
	stopOnce sync.Once
}

func newScheduler(cfg SchedulerConfig, log *zap.Logger) *scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	workers := cfg.CorePoolSize
	if workers <= 0 {
		workers = 4
	}
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = 1000
	}

	s := &scheduler{
		queue: make(chan task, capacity),
		log:   log,
		stop:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.run()
	}
	return s
}

func (s *scheduler) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			for {
				select {
				case t := <-s.queue:
					s.exec(t)
				default:
					return
				}
			}
		case t := <-s.queue:
			s.exec(t)
		}
	}
}

func (s *scheduler) exec(t task) {
	s.activeCount.Add(1)
	defer s.activeCount.Add(-1)
	t(context.Background())
}

// Submit enqueues t for async execution. If the queue is full, t runs
// synchronously on the calling goroutine instead.
func (s *scheduler) Submit(t task) {
	select {
	case s.queue <- t:
	default:
		s.callerRuns.Add(1)
		s.log.Debug("async scheduler queue full, running inline")
		t(context.Background())
	}
}

// ActiveCount returns the number of tasks currently executing.
func (s *scheduler) ActiveCount() int { return int(s.activeCount.Load()) }

// QueueSize returns the number of tasks currently queued.
func (s *scheduler) QueueSize() int { return len(s.queue) }

// CallerRuns returns the count of tasks that ran inline due to a full queue.
func (s *scheduler) CallerRuns() int64 { return s.callerRuns.Load() }

// Shutdown stops the workers and waits for them to exit; before exiting they
// run every task still queued. Submit is not closed off: a task submitted
// after Shutdown stays queued unrun, or runs inline if the queue is full.
func (s *scheduler) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}
