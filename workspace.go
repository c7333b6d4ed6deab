package brew

import "sync"

// Workspace is a shared scratch span identified by role. Convolution
// phases borrow the same span instead of allocating per layer, including
// across train and test nets, so it only ever grows: Reserve keeps the
// high-water size for the life of the process. Contents are scratch and
// are never zeroed between borrowers.
type Workspace struct {
	mu     sync.Mutex
	id     int
	device int
	buf    DevicePtr
	size   int
}

// Reserve grows the workspace to at least n bytes. Growing drops the old
// span first so tight device budgets can be reused; previous contents are
// not carried over. Reserving at or below the current size is a no-op.
func (w *Workspace) Reserve(n int) error {
	if n <= 0 {
		return ErrInvalidSize
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if n <= w.size {
		return nil
	}

	if w.buf.ptr != nil {
		if err := memoryPool().Free(w.buf); err != nil {
			return err
		}
		w.buf = DevicePtr{}
		w.size = 0
	}

	ptr, err := memoryPool().Allocate(w.device, n)
	if err != nil {
		return err
	}
	w.buf = ptr
	w.size = n
	return nil
}

// Size returns the reserved size in bytes, 0 before the first Reserve.
func (w *Workspace) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// ID returns the workspace role id.
func (w *Workspace) ID() int { return w.id }

// Device returns the device the span lives on.
func (w *Workspace) Device() int { return w.device }

// Ptr returns the underlying span. Zero value before the first Reserve.
func (w *Workspace) Ptr() DevicePtr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf
}

// Bytes returns a byte view of the span, nil before the first Reserve.
func (w *Workspace) Bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Byte()
}

// Float32 returns a float32 view of the span.
func (w *Workspace) Float32() []float32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Float32()
}

// Release returns the span to the pool. The next Reserve starts from
// empty. Used by shutdown; compute code normally never releases.
func (w *Workspace) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.ptr == nil {
		return nil
	}
	err := memoryPool().Free(w.buf)
	w.buf = DevicePtr{}
	w.size = 0
	return err
}
