//go:build !linux
// +build !linux

// Package brew provides a goroutine-based thread identity fallback
package brew

import (
	"runtime"
)

// lwpID returns the goroutine id on platforms without a cheap thread id
// syscall. The id is parsed from the first line of the stack header, which
// reads "goroutine N [running]:". Goroutine ids are stable for the life of
// the goroutine, so the LockOSThread contract the Linux path needs is
// covered for free here.
func lwpID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGID(buf[:n])
}

func parseGID(stack []byte) uint64 {
	const prefix = "goroutine "
	if len(stack) < len(prefix) {
		return 0
	}
	var id uint64
	for _, c := range stack[len(prefix):] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
