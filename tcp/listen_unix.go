//go:build unix

// File: tcp/listen_unix.go
// Package tcp
// Author: momentics <momentics@gmail.com>
//
// SO_REUSEADDR/SO_REUSEPORT control, grounded on the teacher's affinity
// package's use of golang.org/x/sys for raw socket-option syscalls.

package tcp

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/momentics/netreactor/api"
)

// controlFor returns a net.ListenConfig.Control func applying the
// reuse-address/reuse-port options requested in opts, or nil if neither
// is set (letting the runtime default apply).
func controlFor(opts api.Options) func(network, address string, c syscall.RawConn) error {
	if !opts.ReuseAddress && !opts.ReusePort {
		return nil
	}
	return func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			if opts.ReuseAddress {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}
			if sockErr == nil && opts.ReusePort {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			}
		})
		if err != nil {
			return err
		}
		return sockErr
	}
}
