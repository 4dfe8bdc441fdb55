// File: core/service.go
// Package core
// Author: momentics <momentics@gmail.com>
//
// Service owns a worker pool and drives the shared reactor and timer
// wheel (spec §4.1). It is the L0 "I/O Service" layer: sessions, servers,
// and timers all schedule their callbacks through a Service via a Strand.
//
// Scheduling model: a bounded set of worker goroutines pull posted work
// items from a shared FIFO (backed by github.com/eapache/queue, the
// teacher's own dependency) and run them to completion. A dedicated
// reactor goroutine services the timer heap, posting due timer callbacks
// into the same FIFO. Between due timers it sleeps in the reactor's Poll
// where a native multiplexer exists (Linux epoll), otherwise on a timer;
// no socket is registered with the reactor, so Poll only serves as the
// sleep and socket I/O runs on per-session goroutines.
package core

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/reactor"
)

// State enumerates the Service lifecycle (spec §3, "Service").
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Service is the L0 reactor + worker pool described in spec §4.1.
type Service struct {
	workers int
	polling bool
	sink    api.ServiceSink

	state atomic.Int32

	mu    sync.Mutex
	cond  *sync.Cond
	tasks *queue.Queue

	reactor  reactor.EventReactor
	timers   *timerHeapGuard
	wakeCh   chan struct{}
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewService constructs a Service with the given worker count (<=0 means
// runtime.NumCPU()) and event sink. It does not start any goroutines until
// Start is called.
func NewService(workerCount int, sink api.ServiceSink) *Service {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	// reactor.New never fails today (epoll_create1 errors would be
	// systemic), but Service tolerates a future implementation that can:
	// a nil reactor here would only break Reactor(), never timers/Post.
	r, _ := reactor.New()
	s := &Service{
		workers: workerCount,
		sink:    sink,
		tasks:   queue.New(),
		reactor: r,
		timers:  newTimerHeapGuard(),
		wakeCh:  make(chan struct{}, 1),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Reactor exposes the underlying multiplexer for advanced callers; no
// package in this module registers descriptors with it.
func (s *Service) Reactor() reactor.EventReactor { return s.reactor }

// State returns the current lifecycle state.
func (s *Service) State() State { return State(s.state.Load()) }

// Start launches the worker pool. Returns false if already running.
// When polling is true, a worker with no pending work invokes
// sink.OnIdle instead of parking (spec §4.1).
func (s *Service) Start(polling bool) bool {
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return false
	}
	s.polling = polling
	s.stopCh = make(chan struct{})

	s.wg.Add(s.workers + 1)
	for i := 0; i < s.workers; i++ {
		go s.workerLoop()
	}
	go s.reactorLoop()

	s.state.Store(int32(StateRunning))
	if s.sink.OnStarted != nil {
		s.sink.OnStarted()
	}
	return true
}

// Stop requests cooperative shutdown: pending posted work drains, the
// reactor/timer goroutine exits, and Stop blocks until every worker has
// returned. No event callback runs after Stop returns to its caller
// (spec §3 invariant).
func (s *Service) Stop() bool {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return false
	}
	close(s.stopCh)
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()
	s.state.Store(int32(StateStopped))
	if s.sink.OnStopped != nil {
		s.sink.OnStopped()
	}
	return true
}

// Restart performs an atomic Stop+Start, preserving configuration.
func (s *Service) Restart() bool {
	if s.State() == StateRunning {
		if !s.Stop() {
			return false
		}
	}
	return s.Start(s.polling)
}

// Post enqueues a work item for execution by some worker; it never runs
// inline on the caller's goroutine. Dispatch is an alias for Post: Go's
// goroutine model does not expose a cheap, safe way to detect "the caller
// is already a worker of this Service", so both entry points collapse to
// the same deferred-enqueue primitive. The inlining behavior described by
// the original ASIO-derived design is instead provided at the Strand
// level, where a strand already executing on a worker runs its next
// queued item inline without a further Post round-trip (see strand.go).
func (s *Service) Post(work func()) {
	s.mu.Lock()
	s.tasks.Add(work)
	s.cond.Signal()
	s.mu.Unlock()
}

// Dispatch enqueues work exactly like Post. See Post's documentation.
func (s *Service) Dispatch(work func()) { s.Post(work) }

func (s *Service) workerLoop() {
	defer s.wg.Done()
	if s.sink.OnThreadInitialize != nil {
		s.sink.OnThreadInitialize()
	}
	defer func() {
		if s.sink.OnThreadCleanup != nil {
			s.sink.OnThreadCleanup()
		}
	}()
	for {
		s.mu.Lock()
		for s.tasks.Length() == 0 {
			select {
			case <-s.stopCh:
				s.mu.Unlock()
				return
			default:
			}
			if s.polling {
				s.mu.Unlock()
				if s.sink.OnIdle != nil {
					s.sink.OnIdle()
				}
				s.mu.Lock()
				// Re-check under lock before waiting to avoid a missed
				// signal if work arrived while OnIdle ran.
				if s.tasks.Length() > 0 {
					break
				}
				select {
				case <-s.stopCh:
					s.mu.Unlock()
					return
				default:
				}
			}
			s.cond.Wait()
			select {
			case <-s.stopCh:
				s.mu.Unlock()
				return
			default:
			}
		}
		work := s.tasks.Remove().(func())
		s.mu.Unlock()

		s.runTask(work)
	}
}

func (s *Service) runTask(work func()) {
	defer func() {
		if r := recover(); r != nil {
			if s.sink.OnError != nil {
				s.sink.OnError(api.NewError(api.ErrCodeProgrammer, "panic in posted work item", nil))
			}
		}
	}()
	work()
}

// reactorLoop services the timer heap. When the platform reactor is
// supported it waits in Poll (capped at pollInterval) and discards the
// result; otherwise it waits on a timer that wake can cut short.
func (s *Service) reactorLoop() {
	defer s.wg.Done()
	const pollInterval = 20 * time.Millisecond
	for {
		select {
		case <-s.stopCh:
			s.timers.cancelAll()
			return
		default:
		}

		next, hasNext := s.timers.nextExpiry()
		var wait time.Duration
		if hasNext {
			wait = time.Until(next)
			if wait < 0 {
				wait = 0
			}
		} else {
			wait = pollInterval
		}
		if s.reactor.Supported() && wait > pollInterval {
			wait = pollInterval
		}

		if s.reactor.Supported() {
			_, _ = s.reactor.Poll(wait)
		} else {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-s.wakeCh:
				timer.Stop()
			case <-s.stopCh:
				timer.Stop()
				s.timers.cancelAll()
				return
			}
		}

		s.timers.fireDue(time.Now(), s.Post)
	}
}

// wake nudges the reactor goroutine to re-evaluate the timer heap, used
// when a timer is armed with an earlier deadline than whatever the loop
// is currently sleeping on. Only the timer-based wait reads wakeCh; when
// the reactor is supported the loop notices the new deadline after its
// current Poll returns, within pollInterval.
func (s *Service) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Pending returns the number of work items awaiting a worker; useful for
// tests and diagnostics.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Length()
}
