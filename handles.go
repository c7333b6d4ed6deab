package brew

import (
	"sync"
	"sync/atomic"
)

// Emulated engine versions reported by Props.
const (
	blasEngineVersion = "2.11.4"
	dnnEngineVersion  = "8.9.0"
)

// noCopy flags a struct for the copylocks vet check. Handles are shared by
// pointer; a copied handle would double-destroy its table entry.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// engineRegistry emulates a native library's handle table. Creation draws
// an id from a finite table and destruction returns it. Running the table
// dry means the process is leaking handles, which the native libraries
// also treat as unrecoverable.
type engineRegistry struct {
	name     string
	mu       sync.Mutex
	next     uint64
	live     map[uint64]struct{}
	capacity int
}

func newEngineRegistry(name string, capacity int) *engineRegistry {
	return &engineRegistry{
		name:     name,
		live:     make(map[uint64]struct{}),
		capacity: capacity,
	}
}

func (r *engineRegistry) create(op string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.live) >= r.capacity {
		fatalf(ErrTypeResource, op, "%s handle table exhausted (%d live)", r.name, len(r.live))
	}
	r.next++
	r.live[r.next] = struct{}{}
	return r.next
}

func (r *engineRegistry) destroy(op string, handle uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[handle]; !ok {
		fatalf(ErrTypeResource, op, "%s handle %d not live", r.name, handle)
	}
	delete(r.live, handle)
}

func (r *engineRegistry) liveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

var (
	blasEngines = newEngineRegistry("blas", MaxEngineHandles)
	dnnEngines  = newEngineRegistry("dnn", MaxEngineHandles)
)

// BLASHandle owns one linear algebra engine handle and the stream the
// engine issues work on. Handles in the same lane group share a stream, so
// work queued through either engine stays ordered with the lane.
type BLASHandle struct {
	noCopy noCopy
	handle uint64
	stream *Stream
	closed atomic.Bool
}

// NewBLASHandle creates a handle with its own stream on the device.
func NewBLASHandle(device int) *BLASHandle {
	return &BLASHandle{
		handle: blasEngines.create("NewBLASHandle"),
		stream: NewStream(device),
	}
}

// newBLASHandleOnStream creates a handle co-owning an existing stream.
func newBLASHandleOnStream(s *Stream) *BLASHandle {
	return &BLASHandle{
		handle: blasEngines.create("NewBLASHandle"),
		stream: s.retain(),
	}
}

// Handle returns the raw engine handle id.
func (h *BLASHandle) Handle() uint64 { return h.handle }

// Stream returns the stream the engine is bound to.
func (h *BLASHandle) Stream() *Stream { return h.stream }

// Close destroys the engine handle and drops the stream reference. A
// second Close is a double destroy and faults.
func (h *BLASHandle) Close() {
	if h.closed.Swap(true) {
		fatalf(ErrTypeResource, "BLASHandle.Close", "blas handle %d closed twice", h.handle)
	}
	blasEngines.destroy("BLASHandle.Close", h.handle)
	h.stream.Close()
}

// DNNHandle owns one neural primitive engine handle bound to a stream.
// Same sharing and lifetime rules as BLASHandle.
type DNNHandle struct {
	noCopy noCopy
	handle uint64
	stream *Stream
	closed atomic.Bool
}

// NewDNNHandle creates a handle with its own stream on the device.
func NewDNNHandle(device int) *DNNHandle {
	return &DNNHandle{
		handle: dnnEngines.create("NewDNNHandle"),
		stream: NewStream(device),
	}
}

func newDNNHandleOnStream(s *Stream) *DNNHandle {
	return &DNNHandle{
		handle: dnnEngines.create("NewDNNHandle"),
		stream: s.retain(),
	}
}

// Handle returns the raw engine handle id.
func (h *DNNHandle) Handle() uint64 { return h.handle }

// Stream returns the stream the engine is bound to.
func (h *DNNHandle) Stream() *Stream { return h.stream }

// Close destroys the engine handle and drops the stream reference.
func (h *DNNHandle) Close() {
	if h.closed.Swap(true) {
		fatalf(ErrTypeResource, "DNNHandle.Close", "dnn handle %d closed twice", h.handle)
	}
	dnnEngines.destroy("DNNHandle.Close", h.handle)
	h.stream.Close()
}
