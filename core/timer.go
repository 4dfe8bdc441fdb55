// File: core/timer.go
// Package core
// Author: momentics <momentics@gmail.com>
//
// Timer implements the one-shot/rescheduleable wakeup described in spec
// §3/§4.2, grounded on the original CppServer Timer::Setup/WaitAsync/
// WaitSync/Cancel contract (see _examples/original_source/server/asio/timer.cpp).
// A Service-wide min-heap (timerHeapGuard) tracks every armed timer and is
// serviced by the Service's reactor goroutine.

package core

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

// TimerState mirrors spec §3: unarmed -> armed -> (fired | cancelled).
type TimerState int32

const (
	TimerUnarmed TimerState = iota
	TimerArmed
	TimerFired
	TimerCancelled
)

// Timer is a one-shot wakeup bound to a Service. At most one outstanding
// wait may be in flight at a time (spec invariant).
type Timer struct {
	svc *Service

	mu       sync.Mutex
	expiry   time.Time
	action   func(cancelled bool)
	state    TimerState
	waitCh   chan struct{}
	heapIdx  int // index into the Service's heap, -1 when not queued
}

// NewTimer creates an unarmed timer bound to svc.
func NewTimer(svc *Service) *Timer {
	return &Timer{svc: svc, heapIdx: -1, state: TimerUnarmed}
}

// SetupAt sets an absolute deadline, replacing any prior expiry. If the
// timer was already armed, it is effectively rearmed at the new deadline.
func (t *Timer) SetupAt(when time.Time) {
	t.mu.Lock()
	wasArmed := t.state == TimerArmed
	t.mu.Unlock()
	if wasArmed {
		t.svc.timers.remove(t)
	}
	t.mu.Lock()
	t.expiry = when
	t.mu.Unlock()
	if wasArmed {
		t.svc.timers.insert(t)
		t.svc.wake()
	}
}

// SetupIn sets a deadline relative to now.
func (t *Timer) SetupIn(d time.Duration) {
	t.SetupAt(time.Now().Add(d))
}

// SetupAction replaces the callback without touching the armed expiry.
func (t *Timer) SetupAction(action func(cancelled bool)) {
	t.mu.Lock()
	t.action = action
	t.mu.Unlock()
}

// WaitAsync arms a one-shot asynchronous wait: the action callback set by
// SetupAction fires on the Service once the
// deadline elapses, with cancelled=false, or immediately with
// cancelled=true if Cancel is called first.
func (t *Timer) WaitAsync() bool {
	t.mu.Lock()
	if t.expiry.IsZero() {
		t.mu.Unlock()
		return false
	}
	t.state = TimerArmed
	t.mu.Unlock()
	t.svc.timers.insert(t)
	t.svc.wake()
	return true
}

// WaitSync blocks the calling goroutine until the timer expires or is
// cancelled. It must not be called from a Service worker goroutine (spec
// §4.2: "blocks the caller until expiration or cancellation").
func (t *Timer) WaitSync() error {
	t.mu.Lock()
	if t.expiry.IsZero() {
		t.mu.Unlock()
		return errors.New("core: timer has no expiry set")
	}
	done := make(chan struct{})
	t.waitCh = done
	t.state = TimerArmed
	t.mu.Unlock()

	t.svc.timers.insert(t)
	t.svc.wake()
	<-done
	return nil
}

// Cancel cancels any pending wait; the action callback fires with
// cancelled=true. Returns false if the timer was not armed.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	if t.state != TimerArmed {
		t.mu.Unlock()
		return false
	}
	t.state = TimerCancelled
	t.mu.Unlock()
	t.svc.timers.remove(t)
	t.fire(true)
	return true
}

// ExpireTime returns the current absolute deadline.
func (t *Timer) ExpireTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expiry
}

// ExpireTimespan returns the deadline minus now; may be negative.
func (t *Timer) ExpireTimespan() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Until(t.expiry)
}

// fire runs the action/waitCh completion. cancelled maps operation_aborted
// to cancelled=true per spec §4.2 — never surfaced as onError.
func (t *Timer) fire(cancelled bool) {
	t.mu.Lock()
	action := t.action
	waitCh := t.waitCh
	t.waitCh = nil
	if !cancelled {
		t.state = TimerFired
	}
	t.mu.Unlock()

	if action != nil {
		action(cancelled)
	}
	if waitCh != nil {
		close(waitCh)
	}
}

// timerHeapGuard is the Service-wide min-heap of armed timers, guarded by
// its own mutex so Timer methods never need to reach into Service locks.
type timerHeapGuard struct {
	mu sync.Mutex
	h  timerHeap
}

func newTimerHeapGuard() *timerHeapGuard {
	return &timerHeapGuard{}
}

func (g *timerHeapGuard) insert(t *Timer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.heapIdx >= 0 {
		heap.Fix(&g.h, t.heapIdx)
		return
	}
	heap.Push(&g.h, t)
}

func (g *timerHeapGuard) remove(t *Timer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.heapIdx < 0 || t.heapIdx >= g.h.Len() || g.h[t.heapIdx] != t {
		return
	}
	heap.Remove(&g.h, t.heapIdx)
}

func (g *timerHeapGuard) nextExpiry() (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.h.Len() == 0 {
		return time.Time{}, false
	}
	return g.h[0].expiry, true
}

// fireDue pops and fires every timer whose deadline is <= now, dispatching
// each callback through post (typically Service.Post) so it runs on a
// worker rather than inline on the reactor goroutine.
func (g *timerHeapGuard) fireDue(now time.Time, post func(func())) {
	var due []*Timer
	g.mu.Lock()
	for g.h.Len() > 0 && !g.h[0].expiry.After(now) {
		t := heap.Pop(&g.h).(*Timer)
		due = append(due, t)
	}
	g.mu.Unlock()

	for _, t := range due {
		t := t
		post(func() { t.fire(false) })
	}
}

func (g *timerHeapGuard) cancelAll() {
	g.mu.Lock()
	pending := g.h
	g.h = nil
	g.mu.Unlock()
	for _, t := range pending {
		t.fire(true)
	}
}

// timerHeap implements container/heap.Interface ordered by expiry.
type timerHeap []*Timer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].expiry.Before(h[j].expiry) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}
func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.heapIdx = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIdx = -1
	*h = old[:n-1]
	return t
}
