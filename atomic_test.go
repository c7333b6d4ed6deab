package brew

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestAtomicMin(t *testing.T) {
	var v atomic.Uint64
	v.Store(100)

	atomicMin(&v, 50)
	if got := v.Load(); got != 50 {
		t.Errorf("atomicMin(100, 50) = %d, want 50", got)
	}
	atomicMin(&v, 80)
	if got := v.Load(); got != 50 {
		t.Errorf("atomicMin with larger candidate moved value to %d", got)
	}
	atomicMin(&v, 50)
	if got := v.Load(); got != 50 {
		t.Errorf("atomicMin with equal candidate moved value to %d", got)
	}
}

func TestAtomicMax(t *testing.T) {
	var v atomic.Uint64
	v.Store(10)

	atomicMax(&v, 30)
	if got := v.Load(); got != 30 {
		t.Errorf("atomicMax(10, 30) = %d, want 30", got)
	}
	atomicMax(&v, 5)
	if got := v.Load(); got != 30 {
		t.Errorf("atomicMax with smaller candidate moved value to %d", got)
	}
}

func TestAtomicMinConcurrent(t *testing.T) {
	var v atomic.Uint64
	v.Store(^uint64(0))

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(base uint64) {
			defer wg.Done()
			for i := uint64(0); i < 1000; i++ {
				atomicMin(&v, base+i)
			}
		}(uint64(g) * 1000)
	}
	wg.Wait()

	if got := v.Load(); got != 0 {
		t.Errorf("concurrent atomicMin settled at %d, want 0", got)
	}
}
