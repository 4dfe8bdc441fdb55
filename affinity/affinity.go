// File: affinity/affinity.go
// Package affinity
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral CPU affinity control for worker threads (spec §9's
// deployment guidance: pinning Service workers to specific cores).
// Grounded on the teacher's affinity/affinity.go split between a neutral
// entry point and per-platform implementations, but built on
// golang.org/x/sys/unix's Sched_setaffinity instead of the teacher's
// cgo pthread call, avoiding a cgo dependency for the same syscall.
package affinity

// SetAffinity pins the calling OS thread to cpuID. Callers that want a
// specific goroutine pinned must first call runtime.LockOSThread.
// Returns ErrNotSupported on platforms without a native mechanism.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}

// AvailableCPUs returns the number of logical CPUs schedulable by the
// current process, or a conservative fallback on unsupported platforms.
func AvailableCPUs() int {
	return availableCPUsPlatform()
}
