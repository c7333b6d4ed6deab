//go:build !linux
// +build !linux

// Package brew provides memory probe stubs for non-Linux platforms
package brew

import "runtime"

// RSS is not implemented on this platform and returns 0.
func RSS() uint64 {
	return 0
}

// totalSystemMemory returns a fixed fallback size where no portable probe
// exists.
func totalSystemMemory() uint64 {
	return defaultSystemMemory
}

// osRelease returns the platform name where no uname probe exists.
func osRelease() string {
	return runtime.GOOS
}
