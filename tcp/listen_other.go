//go:build !unix

// File: tcp/listen_other.go
// Package tcp
// Author: momentics <momentics@gmail.com>

package tcp

import (
	"syscall"

	"github.com/momentics/netreactor/api"
)

// controlFor is a no-op on platforms without SO_REUSEPORT semantics.
func controlFor(opts api.Options) func(network, address string, c syscall.RawConn) error {
	return nil
}
