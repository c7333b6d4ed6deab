package brew

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestStreamOrderedExecution(t *testing.T) {
	withDevices(t, 1)

	s := NewStream(0)
	defer s.Close()

	var order []int
	for i := 0; i < 10; i++ {
		i := i
		s.Submit(func() { order = append(order, i) })
	}
	s.Synchronize()

	for i, got := range order {
		if got != i {
			t.Fatalf("task %d ran out of order: %v", i, order)
		}
	}
}

func TestStreamQuery(t *testing.T) {
	withDevices(t, 1)

	s := NewStream(0)
	defer s.Close()

	if !s.Query() {
		t.Error("fresh stream reports pending work")
	}

	release := make(chan struct{})
	s.Submit(func() { <-release })
	if s.Query() {
		t.Error("stream with queued task reports drained")
	}
	close(release)
	s.Synchronize()
	if !s.Query() {
		t.Error("synchronized stream reports pending work")
	}
}

func TestStreamDoneFlagOnClose(t *testing.T) {
	withDevices(t, 1)

	s := NewStream(0)
	var ran atomic.Bool
	s.Submit(func() { ran.Store(true) })

	done := s.Done()
	if done.IsSet() {
		t.Error("done flag set before Close")
	}
	s.Close()
	if !done.IsSet() {
		t.Error("done flag not set after final Close")
	}
	if !ran.Load() {
		t.Error("Close dropped a queued task")
	}
}

func TestStreamRetainRelease(t *testing.T) {
	withDevices(t, 1)

	s := NewStream(0)
	s.retain()

	s.Close() // first holder leaves
	if s.Done().IsSet() {
		t.Error("stream stopped while a reference remained")
	}

	var ran atomic.Bool
	s.Submit(func() { ran.Store(true) })
	s.Close() // last holder leaves
	if !ran.Load() {
		t.Error("task submitted before final Close did not run")
	}
	if !s.Done().IsSet() {
		t.Error("stream did not stop after final Close")
	}
}

func TestStreamSubmitAfterCloseFaults(t *testing.T) {
	withDevices(t, 1)

	s := NewStream(0)
	s.Close()

	defer func() {
		if _, ok := recover().(*FatalError); !ok {
			t.Error("Submit after Close did not raise a fatal error")
		}
	}()
	s.Submit(func() {})
}

func TestStreamOnBadDeviceFaults(t *testing.T) {
	withDevices(t, 1)

	defer func() {
		if _, ok := recover().(*FatalError); !ok {
			t.Error("NewStream on missing device did not raise a fatal error")
		}
	}()
	NewStream(3)
}

func TestStreamsRunConcurrently(t *testing.T) {
	withDevices(t, 1)

	a := NewStream(0)
	b := NewStream(0)
	defer a.Close()
	defer b.Close()

	gate := make(chan struct{})
	var crossed atomic.Bool

	// a blocks until b's task opens the gate; if streams shared a worker
	// this would deadlock.
	a.Submit(func() { <-gate; crossed.Store(true) })
	b.Submit(func() { close(gate) })

	ok := make(chan struct{})
	go func() {
		a.Synchronize()
		close(ok)
	}()
	select {
	case <-ok:
	case <-time.After(2 * time.Second):
		t.Fatal("streams did not run concurrently")
	}
	if !crossed.Load() {
		t.Error("gated task never ran")
	}
}
