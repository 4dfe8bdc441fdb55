// File: core/strand.go
// Package core
// Author: momentics <momentics@gmail.com>
//
// Strand is a virtual single-threaded executor over a multi-threaded
// Service (spec §3/§5): callbacks posted through the same strand are
// serialized and happen-before each other, without dedicating a goroutine
// to every idle session.

package core

import (
	"sync"

	"github.com/momentics/netreactor/api"
)

// Strand serializes a sequence of callbacks onto a Service's worker pool.
// Every tcp.Session and udp.Socket owns exactly one Strand for its
// callbacks; tcp.Server owns none and posts its own callbacks directly
// to the Service, so they are not serialized with each other.
type Strand struct {
	svc *Service

	mu      sync.Mutex
	queue   []func()
	running bool
}

// NewStrand binds a new Strand to svc.
func NewStrand(svc *Service) *Strand {
	return &Strand{svc: svc}
}

// Post enqueues fn to run on this strand. If the strand is currently idle,
// a single drain task is scheduled onto the Service; if a drain is already
// in flight, fn simply joins the queue and the running drain will pick it
// up next, inline, without a further round-trip through the Service —
// this is what gives same-strand posts the "dispatch" inlining behavior
// described in the original design notes (see Service.Post's doc comment).
func (s *Strand) Post(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	s.svc.Post(s.drain)
}

func (s *Strand) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.runOne(fn)
	}
}

// runOne mirrors Service.runTask's panic handling: a panicking callback
// must not take down the drain goroutine, but it also must not vanish
// silently — a caller holding a lock across the call (as ws.Session.onReceived
// does across DecodeFrame) needs OnError reported so the failure is
// observable instead of wedging the strand's owner forever.
func (s *Strand) runOne(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if s.svc.sink.OnError != nil {
				s.svc.sink.OnError(api.NewError(api.ErrCodeProgrammer, "panic in strand-dispatched callback", nil))
			}
		}
	}()
	fn()
}

// Pending reports the number of callbacks awaiting execution on this
// strand; useful for backpressure and tests.
func (s *Strand) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
