package brew

import (
	"fmt"
	"sync"
	"unsafe"
)

// MemcpyKind specifies the direction of memory transfer. The unified memory
// model treats them identically; the kind is kept so transfer call sites
// document their intent and can be routed onto the transfer lane.
type MemcpyKind int

const (
	MemcpyHostToHost     MemcpyKind = iota // Host to host transfer
	MemcpyHostToDevice                     // Host to device transfer
	MemcpyDeviceToHost                     // Device to host transfer
	MemcpyDeviceToDevice                   // Device to device transfer
	MemcpyDefault                          // Default transfer (infer direction)
)

// MemoryPool manages device memory allocation with efficient reuse. Each
// device draws from its own budget so a runaway consumer on one device
// cannot starve the others, and a free list of previously allocated blocks
// reduces allocation overhead and fragmentation.
type MemoryPool struct {
	mu        sync.Mutex
	allocated map[uintptr]*allocation
	freeList  []*allocation
	budgets   map[int]uint64
	usage     map[int]*deviceUsage
}

type deviceUsage struct {
	totalAlloc int64
	peakAlloc  int64
}

type allocation struct {
	buf    []byte // roots the block for the GC
	ptr    unsafe.Pointer
	size   int
	device int
	used   bool
}

// DevicePtr represents a pointer to device memory. It provides type-safe
// access to device memory and supports pointer arithmetic through the
// Offset method. Use the type conversion methods (Float32, Float64, etc.)
// to access the underlying data with proper type safety.
type DevicePtr struct {
	ptr    unsafe.Pointer
	size   int
	offset int
	device int
}

// NewMemoryPool creates a memory pool with one budget per device in the
// inventory.
func NewMemoryPool(devs []Device) *MemoryPool {
	mp := &MemoryPool{
		allocated: make(map[uintptr]*allocation),
		budgets:   make(map[int]uint64),
		usage:     make(map[int]*deviceUsage),
	}
	for _, d := range devs {
		mp.budgets[d.ID] = d.TotalMem
		mp.usage[d.ID] = &deviceUsage{}
	}
	return mp
}

// Allocate allocates memory on the given device
func (mp *MemoryPool) Allocate(device, size int) (DevicePtr, error) {
	if size <= 0 {
		return DevicePtr{}, ErrInvalidSize
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	use, ok := mp.usage[device]
	if !ok {
		return DevicePtr{}, ErrInvalidDevice
	}

	// Round up to alignment
	alignedSize := (size + MemoryAlignment - 1) &^ (MemoryAlignment - 1)

	if uint64(use.totalAlloc)+uint64(alignedSize) > mp.budgets[device] {
		return DevicePtr{}, NewMemoryError("Malloc",
			fmt.Sprintf("device %d budget exhausted: %s in use, %s requested",
				device, MemFmt(float64(use.totalAlloc)), MemFmt(float64(alignedSize))), nil)
	}

	// Try to reuse from free list
	for i, alloc := range mp.freeList {
		if alloc.device == device && alloc.size >= alignedSize {
			// Remove from free list
			mp.freeList = append(mp.freeList[:i], mp.freeList[i+1:]...)
			alloc.used = true

			use.totalAlloc += int64(alloc.size)
			if use.totalAlloc > use.peakAlloc {
				use.peakAlloc = use.totalAlloc
			}

			return DevicePtr{ptr: alloc.ptr, size: size, device: device}, nil
		}
	}

	// Allocate new memory; the allocation record roots the buffer until
	// the block leaves the pool entirely.
	buf := make([]byte, alignedSize)
	ptr := unsafe.Pointer(&buf[0])

	alloc := &allocation{
		buf:    buf,
		ptr:    ptr,
		size:   alignedSize,
		device: device,
		used:   true,
	}
	mp.allocated[uintptr(ptr)] = alloc

	use.totalAlloc += int64(alignedSize)
	if use.totalAlloc > use.peakAlloc {
		use.peakAlloc = use.totalAlloc
	}

	return DevicePtr{ptr: ptr, size: size, device: device}, nil
}

// Free returns memory to the pool
func (mp *MemoryPool) Free(ptr DevicePtr) error {
	if ptr.ptr == nil {
		return nil
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	allocPtr := uintptr(ptr.ptr)
	alloc, ok := mp.allocated[allocPtr]
	if !ok {
		return NewMemoryError("Free", "pointer not found in allocation pool", nil)
	}

	if !alloc.used {
		return ErrDoubleFree
	}

	alloc.used = false
	if use := mp.usage[alloc.device]; use != nil {
		use.totalAlloc -= int64(alloc.size)
	}

	// Pool the block for reuse unless the free list is already full, in
	// which case drop it and let the GC take the buffer.
	if len(mp.freeList) < FreeListThreshold {
		mp.freeList = append(mp.freeList, alloc)
	} else {
		delete(mp.allocated, allocPtr)
	}

	return nil
}

// GetStats returns allocation statistics for a device
func (mp *MemoryPool) GetStats(device int) (allocated, peak int64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if use, ok := mp.usage[device]; ok {
		return use.totalAlloc, use.peakAlloc
	}
	return 0, 0
}

// AvailMemory returns the unallocated budget of a device in bytes.
func (mp *MemoryPool) AvailMemory(device int) uint64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	use, ok := mp.usage[device]
	if !ok {
		return 0
	}
	budget := mp.budgets[device]
	if uint64(use.totalAlloc) >= budget {
		return 0
	}
	return budget - uint64(use.totalAlloc)
}

// Memcpy copies memory between host and device buffers. Supports various
// combinations of DevicePtr and Go slices.
//
// Parameters:
//   - dst: Destination (DevicePtr or Go slice)
//   - src: Source (DevicePtr or Go slice)
//   - size: Number of bytes to copy
//   - kind: Transfer direction (kept for call site clarity)
func Memcpy(dst, src interface{}, size int, kind MemcpyKind) error {
	var dstPtr, srcPtr unsafe.Pointer

	// Handle dst
	switch d := dst.(type) {
	case DevicePtr:
		dstPtr = d.ptr
	case unsafe.Pointer:
		dstPtr = d
	case []byte:
		if len(d) > 0 {
			dstPtr = unsafe.Pointer(&d[0])
		}
	case []float32:
		if len(d) > 0 {
			dstPtr = unsafe.Pointer(&d[0])
		}
	case []float64:
		if len(d) > 0 {
			dstPtr = unsafe.Pointer(&d[0])
		}
	case []int32:
		if len(d) > 0 {
			dstPtr = unsafe.Pointer(&d[0])
		}
	default:
		return NewInvalidArgError("Memcpy", fmt.Sprintf("unsupported dst type: %T", dst))
	}

	// Handle src
	switch s := src.(type) {
	case DevicePtr:
		srcPtr = s.ptr
	case unsafe.Pointer:
		srcPtr = s
	case []byte:
		if len(s) > 0 {
			srcPtr = unsafe.Pointer(&s[0])
		}
	case []float32:
		if len(s) > 0 {
			srcPtr = unsafe.Pointer(&s[0])
		}
	case []float64:
		if len(s) > 0 {
			srcPtr = unsafe.Pointer(&s[0])
		}
	case []int32:
		if len(s) > 0 {
			srcPtr = unsafe.Pointer(&s[0])
		}
	default:
		return NewInvalidArgError("Memcpy", fmt.Sprintf("unsupported src type: %T", src))
	}

	// Perform the copy
	if dstPtr != nil && srcPtr != nil && size > 0 {
		copy((*[1 << 30]byte)(dstPtr)[:size:size], (*[1 << 30]byte)(srcPtr)[:size:size])
	}

	return nil
}

// DevicePtr methods for convenience

// Float32 returns a float32 slice view of the device memory.
// The slice can be used directly for reading and writing data.
func (d DevicePtr) Float32() []float32 {
	if d.ptr == nil {
		return nil
	}
	return (*[1 << 28]float32)(d.ptr)[: d.size/4 : d.size/4]
}

// Float64 returns a float64 slice view of the device memory.
func (d DevicePtr) Float64() []float64 {
	if d.ptr == nil {
		return nil
	}
	return (*[1 << 27]float64)(d.ptr)[: d.size/8 : d.size/8]
}

// Int32 returns an int32 slice view of the device memory.
func (d DevicePtr) Int32() []int32 {
	if d.ptr == nil {
		return nil
	}
	return (*[1 << 28]int32)(d.ptr)[: d.size/4 : d.size/4]
}

// Byte returns a byte slice view of the device memory.
// The slice covers the entire allocated memory region.
func (d DevicePtr) Byte() []byte {
	if d.ptr == nil {
		return nil
	}
	return (*[1 << 30]byte)(d.ptr)[:d.size:d.size]
}

// Float16 returns a Float16 slice view of the memory
func (d DevicePtr) Float16() Float16Slice {
	if d.ptr == nil {
		return Float16Slice{}
	}
	return NewFloat16Slice(d.Byte())
}

// Offset returns a new DevicePtr offset by the given number of bytes.
// The returned DevicePtr shares the same underlying memory.
func (d DevicePtr) Offset(bytes int) DevicePtr {
	return DevicePtr{
		ptr:    unsafe.Pointer(uintptr(d.ptr) + uintptr(bytes)),
		size:   d.size - bytes,
		offset: d.offset + bytes,
		device: d.device,
	}
}

// Size returns the size in bytes of the memory region
func (d DevicePtr) Size() int {
	return d.size
}

// Device returns the device the memory lives on
func (d DevicePtr) Device() int {
	return d.device
}
