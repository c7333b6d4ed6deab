package brew

import "sync/atomic"

// atomicMin lowers v to n unless v is already n or smaller. Lock free,
// loops on CAS contention.
func atomicMin(v *atomic.Uint64, n uint64) {
	for {
		cur := v.Load()
		if cur <= n || v.CompareAndSwap(cur, n) {
			return
		}
	}
}

// atomicMax raises v to n unless v is already n or larger.
func atomicMax(v *atomic.Uint64, n uint64) {
	for {
		cur := v.Load()
		if cur >= n || v.CompareAndSwap(cur, n) {
			return
		}
	}
}
