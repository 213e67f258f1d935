package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ygrebnov/tasks/metrics"
	"github.com/ygrebnov/tasks/pool"
)

// PoolScheduler is a Scheduler that hands each unit of work to its own
// goroutine, reusing small wrapper structs via pool.Pool the way the
// teacher's dispatcher reused *worker[R] values (dispatcher.go, worker.go):
// the pool amortizes allocation, not goroutine count — concurrency is
// effectively unbounded, matching dispatcher.go's "go func" per task. Close
// follows workersFacade.Close's shape: stop accepting work,
// cancel, then wait for everything in flight.
type PoolScheduler struct {
	ctx    context.Context
	cancel context.CancelFunc

	queue chan *ScheduledWork
	pool  pool.Pool

	inflight sync.WaitGroup

	closeCh   chan struct{}
	closeOnce sync.Once

	queued   metrics.Counter
	running  metrics.UpDownCounter
	runtimes metrics.Histogram
}

// NewPoolScheduler starts a PoolScheduler whose queue buffers up to
// bufferSize pending items before Queue blocks.
func NewPoolScheduler(bufferSize int) *PoolScheduler {
	return NewPoolSchedulerWithMetrics(bufferSize, metrics.NewNoopProvider())
}

// NewPoolSchedulerWithMetrics is NewPoolScheduler with an explicit metrics
// Provider (for instance a metrics.NewPrometheusProvider) instead of the
// default no-op one.
func NewPoolSchedulerWithMetrics(bufferSize int, provider metrics.Provider) *PoolScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &PoolScheduler{
		ctx:      ctx,
		cancel:   cancel,
		queue:    make(chan *ScheduledWork, bufferSize),
		pool:     pool.NewDynamic(func() interface{} { return &schedWorker{} }),
		closeCh:  make(chan struct{}),
		queued:   provider.Counter("tasks_pool_scheduler_queued_total", metrics.WithDescription("units of work accepted by Queue")),
		running:  provider.UpDownCounter("tasks_pool_scheduler_running", metrics.WithDescription("units of work currently executing")),
		runtimes: provider.Histogram("tasks_pool_scheduler_run_seconds", metrics.WithUnit("seconds")),
	}
	go s.dispatch()
	return s
}

type schedWorker struct{}

func (w *schedWorker) run(work *ScheduledWork) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("tasks: scheduler worker recovered a panic outside task execution")
		}
	}()
	work.Run()
}

func (s *PoolScheduler) dispatch() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case work := <-s.queue:
			s.inflight.Add(1)
			s.running.Add(1)
			go func(w *ScheduledWork) {
				defer s.inflight.Done()
				defer s.running.Add(-1)
				start := time.Now()
				ww := s.pool.Get().(*schedWorker)
				ww.run(w)
				s.pool.Put(ww)
				s.runtimes.Record(time.Since(start).Seconds())
			}(work)
		}
	}
}

// Queue implements Scheduler.
func (s *PoolScheduler) Queue(work *ScheduledWork) error {
	select {
	case <-s.closeCh:
		return ErrInvalidState
	default:
	}
	select {
	case s.queue <- work:
		s.queued.Add(1)
		return nil
	case <-s.closeCh:
		return ErrInvalidState
	}
}

// TryInline always declines: PoolScheduler always hands work to a fresh
// goroutine (spec.md §4.9, "may" inline, not "must").
func (s *PoolScheduler) TryInline(work *ScheduledWork, wasPreviouslyQueued bool) bool { return false }

// TryDequeue always declines: the dispatch loop claims a queued item the
// moment it is read, so there is no staged item to race-remove. A task whose
// token fires after it was queued here is therefore not canceled by the
// runtime: its body still runs and has to observe the cancellation itself.
func (s *PoolScheduler) TryDequeue(work *ScheduledWork) bool { return false }

func (s *PoolScheduler) RequiresAtomicStartTransition() bool { return false }

// Close stops accepting new work and blocks until every in-flight item has
// run, mirroring workersFacade.Close's cancel-then-wait sequence.
func (s *PoolScheduler) Close() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.cancel()
		s.inflight.Wait()
	})
}

var defaultScheduler atomic.Pointer[Scheduler]

// DefaultScheduler returns the process-wide scheduler used by Run, Delay,
// and ContinueWith when no explicit scheduler is supplied. It is created
// lazily on first use as a PoolScheduler.
func DefaultScheduler() Scheduler {
	if p := defaultScheduler.Load(); p != nil {
		return *p
	}
	candidate := Scheduler(NewPoolScheduler(1024))
	if defaultScheduler.CompareAndSwap(nil, &candidate) {
		return candidate
	}
	return *defaultScheduler.Load()
}

// SetDefaultScheduler overrides the process-wide default scheduler (for
// tests, or a process that wants every untargeted task to share one
// FIFOScheduler, say).
func SetDefaultScheduler(s Scheduler) {
	defaultScheduler.Store(&s)
}
