package brew

import (
	"sync"
	"sync/atomic"
)

// streamsLive counts worker lanes currently running, for the metrics
// collector.
var streamsLive atomic.Int64

var streamID atomic.Int32

// Stream represents an ordered sequence of operations bound to one device.
// Operations within a stream execute in submission order on a dedicated
// worker goroutine; operations in different streams may execute
// concurrently.
//
// Streams are shared between the engine handles of a lane group, so the
// lifetime is reference counted: every holder releases through Close and
// the last Close stops the worker. The Done flag is set once the worker
// has drained and exited, which lets shutdown code park on it instead of
// polling.
type Stream struct {
	id       int
	device   int
	priority bool
	tasks    chan func()
	wg       sync.WaitGroup
	done     *Flag
	pending  atomic.Int64
	refs     atomic.Int32
	closed   atomic.Bool
}

// NewStream creates an independent stream on the device. The caller owns
// the single reference and must Close it. An unusable device is a
// configuration fault.
func NewStream(device int) *Stream {
	return newStream(device, false)
}

func newStream(device int, highPriority bool) *Stream {
	if !CheckDevice(device) {
		fatalf(ErrTypeDevice, "NewStream", "device %d not usable", device)
	}
	s := &Stream{
		id:       int(streamID.Add(1)),
		device:   device,
		priority: highPriority,
		tasks:    make(chan func(), StreamQueueDepth),
		done:     NewFlag(false),
	}
	s.refs.Store(1)
	streamsLive.Add(1)

	// Start worker goroutine for stream
	go s.worker()
	return s
}

// worker processes tasks for a stream
func (s *Stream) worker() {
	for task := range s.tasks {
		task()
		s.pending.Add(-1)
		s.wg.Done()
	}
	s.done.Set()
}

// Submit adds a task to the stream. Submitting on a released stream is a
// lifetime bug and faults.
func (s *Stream) Submit(task func()) {
	if s.closed.Load() {
		fatalf(ErrTypeExecution, "Stream.Submit", "submit on closed stream %d", s.id)
	}
	s.wg.Add(1)
	s.pending.Add(1)
	s.tasks <- task
}

// Synchronize waits for all tasks in the stream to complete
func (s *Stream) Synchronize() {
	s.wg.Wait()
}

// Query reports whether the stream has drained, without blocking.
func (s *Stream) Query() bool {
	return s.pending.Load() == 0
}

// ID returns the process-unique stream id.
func (s *Stream) ID() int { return s.id }

// Device returns the device the stream is bound to.
func (s *Stream) Device() int { return s.device }

// HighPriority reports whether the stream was created for the transfer
// lane. Advisory only; all workers share the Go scheduler.
func (s *Stream) HighPriority() bool { return s.priority }

// Done returns the completion flag, set once the worker has exited.
func (s *Stream) Done() *Flag { return s.done }

// retain adds a reference for a co-owner such as an engine handle sharing
// the lane.
func (s *Stream) retain() *Stream {
	if s.refs.Add(1) <= 1 {
		fatalf(ErrTypeExecution, "Stream.retain", "stream %d already released", s.id)
	}
	return s
}

// Close releases the caller's reference. The final Close stops the worker
// after the queue drains and waits for it to exit. Callers must not Submit
// concurrently with their own final Close.
func (s *Stream) Close() {
	n := s.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		fatalf(ErrTypeExecution, "Stream.Close", "stream %d released twice", s.id)
	}
	s.closed.Store(true)
	close(s.tasks)
	s.done.Wait()
	streamsLive.Add(-1)
}
