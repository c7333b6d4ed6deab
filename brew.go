package brew

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Brew selects the execution mode. The mode is process wide: it decides
// which generator backend new RNGs get and which tolerance branch Tol2
// takes. Switching modes while work keyed to the old mode is in flight is
// undefined; callers own that quiescence.
type Brew int

const (
	CPU Brew = iota
	GPU
)

// String returns the mode name
func (b Brew) String() string {
	switch b {
	case CPU:
		return "CPU"
	case GPU:
		return "GPU"
	default:
		return fmt.Sprintf("Brew(%d)", int(b))
	}
}

// ParseBrew maps a configuration string onto a mode.
func ParseBrew(s string) (Brew, error) {
	switch strings.ToLower(s) {
	case "cpu":
		return CPU, nil
	case "gpu":
		return GPU, nil
	default:
		return CPU, NewConfigError("ParseBrew", fmt.Sprintf("unknown mode %q", s))
	}
}

// Named locks, in the order the manager takes them. ctxMu guards the
// instance registry, the workspace table and solver bookkeeping; deviceMu
// guards thread device bindings and the multi-device set; the rest guard
// lazy creation of per-group resources. Creation paths take at most one of
// them at a time, so there is no ordering to violate.
var (
	ctxMu    sync.Mutex
	deviceMu sync.Mutex
	streamMu sync.Mutex
	blasMu   sync.Mutex
	dnnMu    sync.Mutex
	seedMu   sync.Mutex
)

var (
	instances     *SharedMap[uint64, *Context]
	threadDevices *SharedMap[uint64, int]

	mode         atomic.Int32
	solverCount  atomic.Int32
	threadCount  atomic.Int32
	rootDeviceID atomic.Int32
	restoredIter atomic.Int64
	rootSeed     atomic.Uint64
	seedSeq      atomic.Uint64
	seedsIssued  atomic.Uint64
	epoch        atomic.Uint64

	gpus []int // guarded by deviceMu

	poolPtr   atomic.Pointer[MemoryPool]
	lifecycle atomic.Pointer[Flag]

	workspaces [WSTotal]*Workspace // guarded by ctxMu
)

func init() {
	instances = NewSharedMap[uint64, *Context](&ctxMu)
	threadDevices = NewSharedMap[uint64, int](&deviceMu)
	rootDeviceID.Store(-1)
	restoredIter.Store(restoredIterNotSet)
	rootSeed.Store(SeedNotSet)
	epoch.Store(epochNotSet)
	solverCount.Store(1)
	lifecycle.Store(NewFlag(false))
}

// Context carries the execution resources of one solver thread on one
// device: lane streams, engine handles and generators. Contexts are cached
// by (thread, device), so repeated lookups from the same thread return the
// same instance and the resources it already built. Everything inside is
// lazy; most threads only ever touch a lane or two.
type Context struct {
	device     int
	rootSolver atomic.Bool

	streams [GroupCount]*Stream     // guarded by streamMu
	blas    [GroupCount]*BLASHandle // guarded by blasMu
	dnn     [GroupCount]*DNNHandle  // guarded by dnnMu

	rng          *RNG    // guarded by seedMu
	devGen       *RNG    // guarded by seedMu
	devGenStream *Stream // guarded by seedMu
}

// Get returns the calling thread's context for its bound device, creating
// it on first use. Thread identity is the OS thread: goroutines that rely
// on cached contexts must pin themselves with runtime.LockOSThread for as
// long as they use the resources.
func Get() *Context {
	dev := CurrentDevice()
	if dev < 0 {
		fatalf(ErrTypeDevice, "Get", "no usable device")
	}
	key := ctxKey(lwpID(), dev)
	return instances.GetOrInsert(key, func() *Context {
		c := &Context{device: dev}
		c.rootSolver.Store(true)
		threadCount.Add(1)
		return c
	})
}

func ctxKey(tid uint64, device int) uint64 {
	return tid<<16 | uint64(uint16(device))
}

// Device returns the device the context is bound to.
func (c *Context) Device() int { return c.device }

// Stream returns the lane group's stream, creating it on first use. The
// transfer lane is created high priority. A group outside [0, GroupCount)
// is a configuration fault.
func (c *Context) Stream(group int) *Stream {
	checkGroup("Stream", group)
	streamMu.Lock()
	defer streamMu.Unlock()
	if c.streams[group] == nil {
		c.streams[group] = newStream(c.device, group == TransferGroup)
	}
	return c.streams[group]
}

// BLAS returns the lane group's linear algebra handle, bound to the lane
// stream so engine work stays ordered with the lane.
func (c *Context) BLAS(group int) *BLASHandle {
	checkGroup("BLAS", group)
	s := c.Stream(group)
	blasMu.Lock()
	defer blasMu.Unlock()
	if c.blas[group] == nil {
		c.blas[group] = newBLASHandleOnStream(s)
	}
	return c.blas[group]
}

// DNN returns the lane group's neural primitive handle, bound to the lane
// stream.
func (c *Context) DNN(group int) *DNNHandle {
	checkGroup("DNN", group)
	s := c.Stream(group)
	dnnMu.Lock()
	defer dnnMu.Unlock()
	if c.dnn[group] == nil {
		c.dnn[group] = newDNNHandleOnStream(s)
	}
	return c.dnn[group]
}

// RNG returns the thread generator, creating it entropy-seeded on first
// use.
func (c *Context) RNG() *RNG {
	seedMu.Lock()
	defer seedMu.Unlock()
	if c.rng == nil {
		c.rng = NewRNG()
	}
	return c.rng
}

// DeviceRand returns the device generator. Requires GPU mode; CPU mode
// draws come from RNG and asking for a device generator there is a
// configuration fault.
func (c *Context) DeviceRand() *RNG {
	if Mode() != GPU {
		fatalf(ErrTypeConfig, "DeviceRand", "device generator requires GPU mode")
	}
	seedMu.Lock()
	defer seedMu.Unlock()
	c.ensureDeviceGenLocked(SeedNotSet)
	return c.devGen
}

// DeviceRandStream returns the stream device generation is ordered on.
// Requires GPU mode.
func (c *Context) DeviceRandStream() *Stream {
	if Mode() != GPU {
		fatalf(ErrTypeConfig, "DeviceRandStream", "device generator requires GPU mode")
	}
	seedMu.Lock()
	defer seedMu.Unlock()
	c.ensureDeviceGenLocked(SeedNotSet)
	return c.devGenStream
}

// ensureDeviceGenLocked builds or reseeds the device generator. SeedNotSet
// means keep an existing generator, drawing entropy only when none exists.
// Callers hold seedMu.
func (c *Context) ensureDeviceGenLocked(seed uint64) {
	if seed == SeedNotSet {
		if c.devGen != nil {
			return
		}
		seed = seedgen()
	}
	if c.devGenStream == nil {
		c.devGenStream = newStream(c.device, false)
	}
	c.devGen = &RNG{gen: newDeviceGenerator(seed)}
}

// close tears down the context's resources: handles first since they hold
// stream references, then the lane streams themselves.
func (c *Context) close() {
	seedMu.Lock()
	devStream := c.devGenStream
	c.rng, c.devGen, c.devGenStream = nil, nil, nil
	seedMu.Unlock()
	if devStream != nil {
		devStream.Close()
	}

	blasMu.Lock()
	blas := c.blas
	c.blas = [GroupCount]*BLASHandle{}
	blasMu.Unlock()
	for _, h := range blas {
		if h != nil {
			h.Close()
		}
	}

	dnnMu.Lock()
	dnn := c.dnn
	c.dnn = [GroupCount]*DNNHandle{}
	dnnMu.Unlock()
	for _, h := range dnn {
		if h != nil {
			h.Close()
		}
	}

	streamMu.Lock()
	streams := c.streams
	c.streams = [GroupCount]*Stream{}
	streamMu.Unlock()
	for _, s := range streams {
		if s != nil {
			s.Close()
		}
	}
}

func checkGroup(op string, group int) {
	if group < 0 || group >= GroupCount {
		fatalf(ErrTypeConfig, op, "invalid group %d (have %d)", group, GroupCount)
	}
}

// Package accessors over the calling thread's context

// ThreadStream returns the calling thread's stream for the lane group.
func ThreadStream(group int) *Stream { return Get().Stream(group) }

// BLAS returns the calling thread's linear algebra handle for the group.
func BLAS(group int) *BLASHandle { return Get().BLAS(group) }

// DNN returns the calling thread's neural primitive handle for the group.
func DNN(group int) *DNNHandle { return Get().DNN(group) }

// ThreadRNG returns the calling thread's generator.
func ThreadRNG() *RNG { return Get().RNG() }

// DeviceRand returns the calling thread's device generator (GPU mode).
func DeviceRand() *RNG { return Get().DeviceRand() }

// DeviceRandStream returns the calling thread's device generation stream
// (GPU mode).
func DeviceRandStream() *Stream { return Get().DeviceRandStream() }

// Mode returns the process execution mode.
func Mode() Brew {
	return Brew(mode.Load())
}

// SetMode switches the process execution mode. A change rebuilds the
// calling thread's mode-derived state: the thread generator and the device
// generator are dropped and recreated for the new mode on next access.
// Other threads keep their generators until they reseed; work already
// issued under the old mode is undefined, the internal state is not.
func SetMode(m Brew) {
	if m != CPU && m != GPU {
		fatalf(ErrTypeConfig, "SetMode", "unknown mode %d", int(m))
	}
	if Brew(mode.Load()) == m {
		return
	}
	old := Brew(mode.Swap(int32(m)))
	reinitThreadGenerators()
	logger().Debug("execution mode changed", "from", old.String(), "to", m.String())
}

// reinitThreadGenerators drops the calling thread's generators so the next
// access rebuilds them against the new mode. Lane streams and engine
// handles are mode independent and survive. A thread with no cached
// context has nothing to rebuild; its first access builds fresh state.
func reinitThreadGenerators() {
	dev := CurrentDevice()
	if dev < 0 {
		return
	}
	c, ok := instances.Get(ctxKey(lwpID(), dev))
	if !ok {
		return
	}
	seedMu.Lock()
	devStream := c.devGenStream
	c.rng, c.devGen, c.devGenStream = nil, nil, nil
	seedMu.Unlock()
	if devStream != nil {
		devStream.Close()
	}
}

// Device selection

// CurrentDevice returns the device the calling thread is bound to: the
// root device unless BindDevice changed it. Returns -1 on an empty
// inventory.
func CurrentDevice() int {
	if dev, ok := threadDevices.Get(lwpID()); ok {
		return dev
	}
	return rootDevice()
}

// BindDevice binds the calling thread to a device for subsequent Get
// calls. The same thread gets a separate context per bound device.
func BindDevice(id int) {
	if !CheckDevice(id) {
		fatalf(ErrTypeDevice, "BindDevice", "device %d not usable", id)
	}
	threadDevices.Set(lwpID(), id)
}

// RootDevice returns the process root device, -1 on an empty inventory.
// The root is pinned to the first usable device when nothing set it.
func RootDevice() int {
	return rootDevice()
}

func rootDevice() int {
	if dev := rootDeviceID.Load(); dev >= 0 {
		return int(dev)
	}
	dev := FindDevice(0)
	if dev < 0 {
		return -1
	}
	if rootDeviceID.CompareAndSwap(-1, int32(dev)) {
		logger().Debug("root device pinned", "device", dev)
	}
	return int(rootDeviceID.Load())
}

// SetDevice pins the root device. An unusable id is a configuration
// fault.
func SetDevice(id int) {
	if !CheckDevice(id) {
		fatalf(ErrTypeDevice, "SetDevice", "device %d not usable", id)
	}
	rootDeviceID.Store(int32(id))
}

// SetDevices installs the device set of a multi-device run. Every id must
// be usable.
func SetDevices(ids []int) {
	for _, id := range ids {
		if !CheckDevice(id) {
			fatalf(ErrTypeDevice, "SetDevices", "device %d not usable", id)
		}
	}
	deviceMu.Lock()
	gpus = append([]int(nil), ids...)
	deviceMu.Unlock()
}

// Devices returns the installed device set, or just the root device when
// none was installed.
func Devices() []int {
	deviceMu.Lock()
	defer deviceMu.Unlock()
	if len(gpus) == 0 {
		if dev := rootDevice(); dev >= 0 {
			return []int{dev}
		}
		return nil
	}
	return append([]int(nil), gpus...)
}

// InUseDeviceCount returns the size of the installed device set.
func InUseDeviceCount() int {
	return len(Devices())
}

// MinAvailDeviceMemory returns the smallest unallocated budget across the
// installed device set. Multi-device runs size shared buffers to it.
func MinAvailDeviceMemory() uint64 {
	devs := Devices()
	if len(devs) == 0 {
		return 0
	}
	mp := memoryPool()
	min := ^uint64(0)
	for _, d := range devs {
		if avail := mp.AvailMemory(d); avail < min {
			min = avail
		}
	}
	return min
}

// Solver bookkeeping

// SolverCount returns the number of cooperating solver threads.
func SolverCount() int {
	return int(solverCount.Load())
}

// SetSolverCount installs the solver thread count.
func SetSolverCount(n int) {
	if n < 1 {
		fatalf(ErrTypeConfig, "SetSolverCount", "solver count must be positive, got %d", n)
	}
	if int(solverCount.Load()) == n {
		return
	}
	solverCount.Store(int32(n))
}

// RootSolver reports whether the calling thread is a root solver.
func RootSolver() bool {
	return Get().rootSolver.Load()
}

// SetRootSolver marks the calling thread as root or follower.
func SetRootSolver(root bool) {
	Get().rootSolver.Store(root)
}

// RestoredIter returns the snapshot iteration the run resumed from, -1 on
// a fresh run.
func RestoredIter() int64 {
	return restoredIter.Load()
}

// SetRestoredIter records the snapshot iteration a resumed run starts at.
func SetRestoredIter(iter int64) {
	restoredIter.Store(iter)
}

// ThreadCount returns the number of live cached contexts.
func ThreadCount() int {
	return int(threadCount.Load())
}

// Seeds

// SetRandomSeed reseeds the calling thread's generators. SeedNotSet draws
// a fresh entropy seed. The root seed lineage is untouched; use
// SetRootSeed to start a deterministic run.
func SetRandomSeed(seed uint64) {
	if seed == SeedNotSet {
		seed = seedgen()
	}
	c := Get()
	seedMu.Lock()
	defer seedMu.Unlock()
	c.rng = newRNGFor(Mode(), seed)
	if Mode() == GPU {
		c.ensureDeviceGenLocked(splitmix64(seed))
	}
}

// SetRootSeed installs the root of the seed lineage and reseeds the
// calling thread. NextSeed derives solver seeds from this root.
func SetRootSeed(seed uint64) {
	rootSeed.Store(seed)
	seedSeq.Store(0)
	SetRandomSeed(seed)
}

// RootSeed returns the installed root seed, SeedNotSet when none.
func RootSeed() uint64 {
	return rootSeed.Load()
}

var seedFallbackOnce sync.Once

// NextSeed derives the next solver seed from the root seed. Derivation is
// ordered by call: the k-th call process wide returns the same value for
// the same root, whichever thread makes it. Without a root seed every
// call draws fresh entropy and the run is not reproducible.
func NextSeed() uint64 {
	seedsIssued.Add(1)
	seed := rootSeed.Load()
	if seed == SeedNotSet {
		seedFallbackOnce.Do(func() {
			logger().Warn("solver seeds drawn from entropy, run is not reproducible",
				"reason", "no root seed set", "type", ErrTypeDeterminism.String())
		})
		return seedgen()
	}
	k := seedSeq.Add(1)
	return splitmix64(seed + k)
}

// Epochs

// ReportEpochCount folds a trainer's epoch estimate into the process
// minimum. Smaller estimates win so capacity planning sees the slowest
// trainer.
func ReportEpochCount(n uint64) {
	atomicMin(&epoch, n)
}

// EpochCount returns the smallest reported estimate, 0 before the first
// report.
func EpochCount() uint64 {
	if v := epoch.Load(); v != epochNotSet {
		return v
	}
	return 0
}

// Memory

// memoryPool returns the process allocator, building per-device budgets
// from the inventory on first use.
func memoryPool() *MemoryPool {
	if p := poolPtr.Load(); p != nil {
		return p
	}
	poolPtr.CompareAndSwap(nil, NewMemoryPool(registry().devs))
	return poolPtr.Load()
}

// Malloc allocates device memory on the calling thread's device.
func Malloc(size int) (DevicePtr, error) {
	dev := CurrentDevice()
	if dev < 0 {
		return DevicePtr{}, ErrInvalidDevice
	}
	return memoryPool().Allocate(dev, size)
}

// MallocOn allocates device memory on a specific device.
func MallocOn(device, size int) (DevicePtr, error) {
	return memoryPool().Allocate(device, size)
}

// Free releases device memory allocated by Malloc.
func Free(ptr DevicePtr) error {
	return memoryPool().Free(ptr)
}

// WS returns the shared workspace for a role id, created on the root
// device at first use. An id outside [0, WSTotal) is a configuration
// fault.
func WS(id int) *Workspace {
	if id < 0 || id >= WSTotal {
		fatalf(ErrTypeConfig, "WS", "invalid workspace id %d (have %d)", id, WSTotal)
	}
	ctxMu.Lock()
	defer ctxMu.Unlock()
	if workspaces[id] == nil {
		dev := rootDevice()
		if dev < 0 {
			fatalf(ErrTypeDevice, "WS", "no usable device")
		}
		workspaces[id] = &Workspace{id: id, device: dev}
	}
	return workspaces[id]
}

// Lifecycle

// Lifecycle returns the process lifecycle flag. Long-running waiters park
// on it; Shutdown disarms it to release them.
func Lifecycle() *Flag {
	return lifecycle.Load()
}

// ReleaseThread drops every context cached for the calling thread and
// closes its streams and handles. Worker threads call it on exit so their
// lanes do not outlive them.
func ReleaseThread() {
	tid := lwpID()
	var keys []uint64
	var doomed []*Context
	instances.Range(func(k uint64, c *Context) bool {
		if k>>16 == tid {
			keys = append(keys, k)
			doomed = append(doomed, c)
		}
		return true
	})
	for _, k := range keys {
		instances.Erase(k)
	}
	threadDevices.Erase(tid)
	for _, c := range doomed {
		c.close()
	}
	if n := len(doomed); n > 0 {
		threadCount.Add(int32(-n))
	}
}

// Shutdown disarms the lifecycle flag, closes every cached context and
// releases the shared workspaces. The package stays usable: the next Get
// starts a fresh generation, which lets embedders cycle runs in one
// process.
func Shutdown() {
	lifecycle.Load().Disarm()

	var ctxs []*Context
	instances.Range(func(_ uint64, c *Context) bool {
		ctxs = append(ctxs, c)
		return true
	})
	instances.Clear()
	threadDevices.Clear()
	for _, c := range ctxs {
		c.close()
	}
	threadCount.Store(0)

	ctxMu.Lock()
	for i, w := range workspaces {
		if w != nil {
			w.Release()
			workspaces[i] = nil
		}
	}
	ctxMu.Unlock()

	lifecycle.Store(NewFlag(false))
}
