//go:build linux

// File: reactor/epoll_linux.go
// Package reactor
// Author: momentics <momentics@gmail.com>
//
// Linux epoll-backed EventReactor. Grounded on the teacher's
// reactor/epoll_reactor.go: a sync.Map from fd to callback, edge-neutral
// (level-triggered) epoll_wait, panics in callbacks are contained so one
// bad handler cannot take down the poller.

package reactor

import (
	"fmt"
	"sync"
	"syscall"
	"time"
)

type epollReactor struct {
	epfd int
	cbs  sync.Map // map[uintptr]Callback
}

// New constructs the platform reactor. On Linux this is epoll-backed.
func New() (EventReactor, error) {
	fd, err := syscall.EpollCreate1(syscall.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollReactor{epfd: fd}, nil
}

func (r *epollReactor) Supported() bool { return true }

func toEpollEvents(mask EventMask) uint32 {
	var ev uint32
	if mask&EventRead != 0 {
		ev |= syscall.EPOLLIN
	}
	if mask&EventWrite != 0 {
		ev |= syscall.EPOLLOUT
	}
	return ev
}

func (r *epollReactor) Register(fd uintptr, mask EventMask, cb Callback) error {
	ev := syscall.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	if err := syscall.EpollCtl(r.epfd, syscall.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add: %w", err)
	}
	r.cbs.Store(fd, cb)
	return nil
}

func (r *epollReactor) Modify(fd uintptr, mask EventMask) error {
	ev := syscall.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	if err := syscall.EpollCtl(r.epfd, syscall.EPOLL_CTL_MOD, int(fd), &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl mod: %w", err)
	}
	return nil
}

func (r *epollReactor) Unregister(fd uintptr) error {
	err := syscall.EpollCtl(r.epfd, syscall.EPOLL_CTL_DEL, int(fd), nil)
	r.cbs.Delete(fd)
	if err != nil {
		return fmt.Errorf("reactor: epoll_ctl del: %w", err)
	}
	return nil
}

func (r *epollReactor) Poll(timeout time.Duration) (int, error) {
	const maxEvents = 256
	var events [maxEvents]syscall.EpollEvent

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	n, err := syscall.EpollWait(r.epfd, events[:], ms)
	if err != nil {
		if err == syscall.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("reactor: epoll_wait: %w", err)
	}

	fired := 0
	for i := 0; i < n; i++ {
		ev := events[i]
		fd := uintptr(ev.Fd)

		val, ok := r.cbs.Load(fd)
		if !ok {
			continue
		}
		cb := val.(Callback)

		var mask EventMask
		if ev.Events&syscall.EPOLLIN != 0 {
			mask |= EventRead
		}
		if ev.Events&syscall.EPOLLOUT != 0 {
			mask |= EventWrite
		}
		if ev.Events&(syscall.EPOLLERR|syscall.EPOLLHUP) != 0 {
			mask |= EventError
		}

		func() {
			defer func() { _ = recover() }()
			cb(fd, mask)
		}()
		fired++
	}
	return fired, nil
}

func (r *epollReactor) Close() error {
	return syscall.Close(r.epfd)
}
