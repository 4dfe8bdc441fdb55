//go:build !linux

// File: affinity/affinity_stub.go
// Package affinity
// Author: momentics <momentics@gmail.com>

package affinity

import (
	"errors"
	"runtime"
)

// ErrNotSupported is returned by SetAffinity on platforms lacking a
// native pinning syscall wired up here.
var ErrNotSupported = errors.New("affinity: not supported on this platform")

func setAffinityPlatform(cpuID int) error {
	return ErrNotSupported
}

func availableCPUsPlatform() int {
	return runtime.NumCPU()
}
