//go:build linux
// +build linux

// Package brew provides Linux thread identity via the kernel LWP id
package brew

import (
	"golang.org/x/sys/unix"
)

// lwpID returns the kernel thread id of the calling thread. Callers that
// cache per-thread state must pin themselves with runtime.LockOSThread
// first, otherwise the scheduler can migrate them between ids.
func lwpID() uint64 {
	return uint64(unix.Gettid())
}
