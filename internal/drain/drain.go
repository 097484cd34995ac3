// Package drain implements the Drain Scheduler (spec.md §4.J): the
// single-worker serialization of ready signals over a process-local
// in-memory queue, with a failure-triggered retry timer and startup
// recovery of both delayed and (per the resolved replay-on-startup open
// question) non-delayed signal-queue rows. Grounded on
// internal/queue.SQLiteQueue's atomic depth counter, generalized from a
// passive pending-count to a drain-triggering gate, and on
// storage.Store.flushLoop's ticker/stop-channel discipline, adapted from
// "flush on a fixed interval" to "retry a failed apply after
// retryIntervalMs."
package drain

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalforge/fsmrt/internal/apply"
	"github.com/signalforge/fsmrt/internal/clock"
	"github.com/signalforge/fsmrt/internal/delayedqueue"
	"github.com/signalforge/fsmrt/internal/signalqueue"
	"github.com/signalforge/fsmrt/internal/txn"
)

// Executor is the caller-supplied scheduled executor (spec.md §5): one
// worker thread hosts the drain loop, the same executor hosts delayed
// timers.
type Executor interface {
	// Go runs f, typically on its own goroutine.
	Go(f func())
	// Schedule runs f once, after d elapses.
	Schedule(d time.Duration, f func())
}

// GoExecutor is the default Executor: Go spawns a bare goroutine, Schedule
// uses time.AfterFunc. This satisfies "one scheduled executor with exactly
// one worker thread is the default" because the Scheduler itself never
// runs more than one drain task concurrently (see the work-indicator gate
// below) — GoExecutor does not need its own worker pool.
type GoExecutor struct{}

func (GoExecutor) Go(f func()) { go f() }

func (GoExecutor) Schedule(d time.Duration, f func()) { time.AfterFunc(d, f) }

// Metrics is an optional set of collectors the Scheduler reports to. A nil
// Metrics disables all reporting; no metrics call participates in the
// transactional correctness of an apply cycle.
type Metrics interface {
	SetQueueDepth(n int)
	ObserveApplyDuration(d time.Duration)
	IncApplyFailure()
}

// ErrorHandler is invoked whenever an apply attempt fails. Production
// handlers should not panic or block; a test-oriented handler may record
// the error or rethrow to abort the suite.
type ErrorHandler func(sig apply.Signal, err error)

// Scheduler is the Drain Scheduler.
type Scheduler struct {
	Apply         func(ctx context.Context, sig apply.Signal) (apply.Result, error)
	SignalQueue   *signalqueue.Queue
	DelayedQueue  *delayedqueue.Queue
	Query         txn.QueryFactory
	Executor      Executor
	RetryInterval time.Duration
	OnError       ErrorHandler
	Metrics       Metrics
	Clock         clock.Clock
	Log           zerolog.Logger

	mu      sync.Mutex
	pending []apply.Signal
	work    atomic.Int32 // work-indicator gate; see Offer
}

// Offer enqueues sig for processing and, on the 0→n transition of the
// work-indicator, launches a drain task on Executor. Offer never blocks.
func (s *Scheduler) Offer(sig apply.Signal) {
	s.mu.Lock()
	s.pending = append(s.pending, sig)
	depth := len(s.pending)
	s.mu.Unlock()

	wasIdle := s.work.Add(1) == 1

	if s.Metrics != nil {
		s.Metrics.SetQueueDepth(depth)
	}
	if wasIdle {
		s.Executor.Go(func() { s.drain(context.Background()) })
	}
}

// drain is the single worker task: it peeks the front of the pending
// queue, applies it, and on success pops it and decrements the
// work-indicator, continuing until the indicator reaches zero. On failure
// it stops processing (the failed signal stays at the head) and schedules
// a resumption after RetryInterval, per spec.md §4.J.
func (s *Scheduler) drain(ctx context.Context) {
	for {
		sig, ok := s.peek()
		if !ok {
			return
		}

		start := time.Now()
		result, err := s.Apply(ctx, sig)
		if s.Metrics != nil {
			s.Metrics.ObserveApplyDuration(time.Since(start))
		}
		if err != nil {
			if s.Metrics != nil {
				s.Metrics.IncApplyFailure()
			}
			s.Log.Warn().Err(err).Str("signal", sig.String()).Msg("apply failed, scheduling retry")
			if s.OnError != nil {
				s.OnError(sig, err)
			}
			s.Executor.Schedule(s.retryInterval(), func() { s.drain(ctx) })
			return
		}

		s.pop()
		for _, p := range result.Produced {
			s.offerProduced(p)
		}

		done := s.work.Add(-1) == 0
		if s.Metrics != nil {
			s.Metrics.SetQueueDepth(s.len())
		}
		if done {
			return
		}
	}
}

func (s *Scheduler) offerProduced(p apply.Produced) {
	next := apply.Signal{
		Seq: p.Seq, Delayed: p.Delayed, Class: p.Class, ID: p.ID,
		EventClass: p.EventClass, EventBytes: p.EventBytes,
	}
	if !p.Delayed {
		s.Offer(next)
		return
	}
	delay := time.Duration(0)
	if s.Clock != nil {
		now := s.Clock.NowMillis()
		if wait := p.FireAtMillis - now; wait > 0 {
			delay = time.Duration(wait) * time.Millisecond
		}
	}
	s.Executor.Schedule(delay, func() { s.Offer(next) })
}

func (s *Scheduler) retryInterval() time.Duration {
	if s.RetryInterval <= 0 {
		return 30 * time.Second
	}
	return s.RetryInterval
}

func (s *Scheduler) peek() (apply.Signal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return apply.Signal{}, false
	}
	return s.pending[0], true
}

func (s *Scheduler) pop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) > 0 {
		s.pending = s.pending[1:]
	}
}

func (s *Scheduler) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Initialize recovers and schedules delayed signals, and — per the
// resolved "signal-queue replay on startup" design note — also enumerates
// and offers every still-pending non-delayed signal, fixing the bug
// flagged in the source where orphaned non-delayed rows sat unprocessed
// until the next unrelated publish.
func (s *Scheduler) Initialize(ctx context.Context) error {
	q, release, err := s.Query(ctx)
	if err != nil {
		return err
	}
	defer release()

	delayed, err := s.DelayedQueue.SelectAll(ctx, q)
	if err != nil {
		return err
	}
	for _, d := range delayed {
		p := apply.Produced{
			Seq: d.Seq, Delayed: true, Class: d.Class, ID: d.ID,
			EventClass: d.EventClass, EventBytes: d.EventBytes,
			FireAtMillis: d.FireAt.UnixMilli(),
		}
		s.offerProduced(p)
	}

	immediate, err := s.SignalQueue.SelectAll(ctx, q)
	if err != nil {
		return err
	}
	for _, sig := range immediate {
		s.Offer(apply.Signal{
			Seq: sig.Seq, Delayed: false, Class: sig.Class, ID: sig.ID,
			EventClass: sig.EventClass, EventBytes: sig.EventBytes,
		})
	}

	s.Log.Info().Int("delayed", len(delayed)).Int("immediate", len(immediate)).Msg("startup recovery complete")
	return nil
}
