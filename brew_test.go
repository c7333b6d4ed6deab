package brew

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

// resetState gives a test a clean process: no cached contexts, default
// counters, CPU mode, no root seed. Tests that need a particular device
// inventory layer withDevices on top.
func resetState(t *testing.T) {
	t.Helper()
	Shutdown()
	mode.Store(int32(CPU))
	solverCount.Store(1)
	rootDeviceID.Store(-1)
	restoredIter.Store(restoredIterNotSet)
	rootSeed.Store(SeedNotSet)
	seedSeq.Store(0)
	seedsIssued.Store(0)
	epoch.Store(epochNotSet)
	deviceMu.Lock()
	gpus = nil
	deviceMu.Unlock()
	poolPtr.Store(nil)
	t.Cleanup(Shutdown)
}

func TestGetCachesPerThread(t *testing.T) {
	resetState(t)
	withDevices(t, 1)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c1 := Get()
	c2 := Get()
	if c1 != c2 {
		t.Error("repeated Get on one thread returned different contexts")
	}
	if c1.Device() != 0 {
		t.Errorf("context device = %d, want 0", c1.Device())
	}
	if ThreadCount() != 1 {
		t.Errorf("ThreadCount = %d, want 1", ThreadCount())
	}

	var wg sync.WaitGroup
	var other *Context
	wg.Add(1)
	go func() {
		defer wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		other = Get()
		ReleaseThread()
	}()
	wg.Wait()

	if other == c1 {
		t.Error("a second thread shared the first thread's context")
	}
	if ThreadCount() != 1 {
		t.Errorf("ThreadCount after release = %d, want 1", ThreadCount())
	}
}

func TestGetPerDeviceContexts(t *testing.T) {
	resetState(t)
	withDevices(t, 2)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c0 := Get()
	BindDevice(1)
	c1 := Get()
	if c0 == c1 {
		t.Fatal("contexts for different devices were shared")
	}
	if c1.Device() != 1 {
		t.Errorf("bound context device = %d, want 1", c1.Device())
	}
	if CurrentDevice() != 1 {
		t.Errorf("CurrentDevice = %d, want 1", CurrentDevice())
	}
	if ThreadCount() != 2 {
		t.Errorf("ThreadCount = %d, want 2", ThreadCount())
	}

	ReleaseThread()
	if ThreadCount() != 0 {
		t.Errorf("ThreadCount after release = %d, want 0", ThreadCount())
	}
	if CurrentDevice() != 0 {
		t.Errorf("CurrentDevice after release = %d, want root 0", CurrentDevice())
	}
}

func TestLaneStreamsPerGroup(t *testing.T) {
	resetState(t)
	withDevices(t, 1)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c := Get()
	s0 := c.Stream(0)
	s1 := c.Stream(1)
	st := c.Stream(TransferGroup)
	if s0 == s1 || s0 == st || s1 == st {
		t.Fatal("lane groups shared a stream")
	}
	if !st.HighPriority() {
		t.Error("transfer lane is not high priority")
	}
	if s0.HighPriority() {
		t.Error("compute lane 0 is high priority")
	}
	if c.Stream(0) != s0 {
		t.Error("lane stream was not cached")
	}
	if ThreadStream(0) != s0 {
		t.Error("ThreadStream bypassed the cached context")
	}
}

func TestHandlesFollowLaneStream(t *testing.T) {
	resetState(t)
	withDevices(t, 1)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c := Get()
	b := c.BLAS(1)
	d := c.DNN(1)
	if b.Stream() != c.Stream(1) || d.Stream() != c.Stream(1) {
		t.Error("handles are not bound to their lane stream")
	}
	if c.BLAS(1) != b || c.DNN(1) != d {
		t.Error("handles were not cached per group")
	}
	if BLAS(1) != b || DNN(1) != d {
		t.Error("package accessors bypassed the cached context")
	}
}

func TestInvalidGroupFaults(t *testing.T) {
	resetState(t)
	withDevices(t, 1)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	c := Get()

	for _, group := range []int{-1, GroupCount} {
		func() {
			defer func() {
				r := recover()
				fe, ok := r.(*FatalError)
				if !ok {
					t.Fatalf("group %d raised %v, want *FatalError", group, r)
				}
				if fe.Type != ErrTypeConfig {
					t.Errorf("group %d error type = %v, want %v", group, fe.Type, ErrTypeConfig)
				}
			}()
			c.Stream(group)
		}()
	}
}

func TestModeSwitch(t *testing.T) {
	resetState(t)
	withDevices(t, 1)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if Mode() != CPU {
		t.Fatalf("default mode = %v, want CPU", Mode())
	}
	SetMode(GPU)
	if Mode() != GPU {
		t.Errorf("mode after switch = %v, want GPU", Mode())
	}
	SetMode(GPU) // no-op
	if Mode() != GPU {
		t.Errorf("mode after no-op switch = %v, want GPU", Mode())
	}

	// A change rebuilds the calling thread's generators for the new
	// backend. Lane streams are mode independent and survive.
	if got := ThreadRNG().Backend(); got != "counter" {
		t.Fatalf("GPU mode thread backend = %q, want counter", got)
	}
	g1 := DeviceRand()
	s1 := DeviceRandStream()
	lane := ThreadStream(0)

	SetMode(CPU)
	if got := ThreadRNG().Backend(); got != "pcg" {
		t.Errorf("thread backend after switch to CPU = %q, want pcg", got)
	}
	if !s1.Done().IsSet() {
		t.Error("device generation stream kept running across the switch")
	}

	SetMode(GPU)
	if DeviceRand() == g1 {
		t.Error("device generator survived a mode roundtrip")
	}
	if DeviceRandStream() == s1 {
		t.Error("device generation stream survived a mode roundtrip")
	}
	if ThreadStream(0) != lane {
		t.Error("mode switch dropped the lane stream")
	}

	defer func() {
		if _, ok := recover().(*FatalError); !ok {
			t.Error("unknown mode did not raise a fatal error")
		}
	}()
	SetMode(Brew(7))
}

func TestDeviceRandRequiresGPUMode(t *testing.T) {
	resetState(t)
	withDevices(t, 1)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer func() {
		if _, ok := recover().(*FatalError); !ok {
			t.Error("DeviceRand in CPU mode did not raise a fatal error")
		}
	}()
	DeviceRand()
}

func TestDeviceRandLifetime(t *testing.T) {
	resetState(t)
	withDevices(t, 1)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	SetMode(GPU)
	g1 := DeviceRand()
	g2 := DeviceRand()
	if g1 != g2 {
		t.Error("device generator was not cached")
	}
	if DeviceRandStream() == nil {
		t.Error("device generation has no stream")
	}
	if g1.Backend() != "counter" {
		t.Errorf("device generator backend = %q, want counter", g1.Backend())
	}
}

func TestSeedLineage(t *testing.T) {
	resetState(t)
	withDevices(t, 1)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	SetRootSeed(1234)
	if RootSeed() != 1234 {
		t.Fatalf("RootSeed = %d, want 1234", RootSeed())
	}
	first := []uint64{NextSeed(), NextSeed(), NextSeed()}

	SetRootSeed(1234)
	second := []uint64{NextSeed(), NextSeed(), NextSeed()}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("seed %d: replay gave %d, want %d", i, second[i], first[i])
		}
	}
	if first[0] == first[1] || first[1] == first[2] {
		t.Error("derived seeds repeat")
	}
}

func TestSeedLineageDrivesThreadRNG(t *testing.T) {
	resetState(t)
	withDevices(t, 1)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	SetRootSeed(99)
	a := ThreadRNG().Uint64()
	SetRootSeed(99)
	b := ThreadRNG().Uint64()
	if a != b {
		t.Errorf("reseeded draw = %d, want %d", b, a)
	}
}

func TestNextSeedWithoutRootDrawsEntropy(t *testing.T) {
	resetState(t)

	if a, b := NextSeed(), NextSeed(); a == b {
		t.Error("entropy seeds collided")
	}
	if RootSeed() != SeedNotSet {
		t.Error("NextSeed installed a root seed")
	}
}

func TestNextSeedConcurrentSetIsDeterministic(t *testing.T) {
	resetState(t)
	withDevices(t, 1)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	const workers = 8
	const perWorker = 50
	SetRootSeed(7)

	var mu sync.Mutex
	got := make(map[uint64]bool, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				s := NextSeed()
				mu.Lock()
				got[s] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(got) != workers*perWorker {
		t.Fatalf("drew %d distinct seeds, want %d", len(got), workers*perWorker)
	}
	// Whatever the interleaving, the issued set is the first N of the
	// lineage.
	for k := uint64(1); k <= workers*perWorker; k++ {
		if !got[splitmix64(7+k)] {
			t.Fatalf("lineage element %d was never issued", k)
		}
	}
}

func TestEpochCountTracksMinimum(t *testing.T) {
	resetState(t)

	if EpochCount() != 0 {
		t.Fatalf("EpochCount before any report = %d, want 0", EpochCount())
	}
	ReportEpochCount(50)
	if EpochCount() != 50 {
		t.Errorf("EpochCount = %d, want 50", EpochCount())
	}
	ReportEpochCount(80)
	if EpochCount() != 50 {
		t.Errorf("larger report moved EpochCount to %d", EpochCount())
	}
	ReportEpochCount(12)
	if EpochCount() != 12 {
		t.Errorf("EpochCount = %d, want 12", EpochCount())
	}
}

func TestSolverBookkeeping(t *testing.T) {
	resetState(t)
	withDevices(t, 1)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if SolverCount() != 1 {
		t.Fatalf("default SolverCount = %d, want 1", SolverCount())
	}
	SetSolverCount(4)
	if SolverCount() != 4 {
		t.Errorf("SolverCount = %d, want 4", SolverCount())
	}

	if !RootSolver() {
		t.Error("fresh context is not a root solver")
	}
	SetRootSolver(false)
	if RootSolver() {
		t.Error("SetRootSolver(false) did not stick")
	}

	defer func() {
		if _, ok := recover().(*FatalError); !ok {
			t.Error("zero solver count did not raise a fatal error")
		}
	}()
	SetSolverCount(0)
}

func TestRestoredIter(t *testing.T) {
	resetState(t)

	if RestoredIter() != restoredIterNotSet {
		t.Fatalf("fresh RestoredIter = %d, want %d", RestoredIter(), int64(restoredIterNotSet))
	}
	SetRestoredIter(3200)
	if RestoredIter() != 3200 {
		t.Errorf("RestoredIter = %d, want 3200", RestoredIter())
	}
}

func TestDeviceSet(t *testing.T) {
	resetState(t)
	withDevices(t, 3)

	devs := Devices()
	if len(devs) != 1 || devs[0] != 0 {
		t.Fatalf("default device set = %v, want [0]", devs)
	}

	SetDevices([]int{0, 2})
	devs = Devices()
	if len(devs) != 2 || devs[0] != 0 || devs[1] != 2 {
		t.Errorf("device set = %v, want [0 2]", devs)
	}
	if InUseDeviceCount() != 2 {
		t.Errorf("InUseDeviceCount = %d, want 2", InUseDeviceCount())
	}

	SetDevice(2)
	if RootDevice() != 2 {
		t.Errorf("RootDevice = %d, want 2", RootDevice())
	}

	defer func() {
		if _, ok := recover().(*FatalError); !ok {
			t.Error("unusable device in set did not raise a fatal error")
		}
	}()
	SetDevices([]int{0, 5})
}

func TestBindUnusableDeviceFaults(t *testing.T) {
	resetState(t)
	withDevices(t, 2, 1)

	defer func() {
		if _, ok := recover().(*FatalError); !ok {
			t.Error("binding an offline device did not raise a fatal error")
		}
	}()
	BindDevice(1)
}

func TestMallocUsesThreadDevice(t *testing.T) {
	resetState(t)
	withDevices(t, 1)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	p, err := Malloc(256)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}
	if p.Device() != 0 {
		t.Errorf("allocation device = %d, want 0", p.Device())
	}
	if err := Free(p); err != nil {
		t.Errorf("Free: %v", err)
	}
}

func TestMinAvailDeviceMemory(t *testing.T) {
	resetState(t)
	withDevices(t, 2)

	SetDevices([]int{0, 1})
	before := MinAvailDeviceMemory()
	if before == 0 {
		t.Fatal("no budget on a fresh pool")
	}

	p, err := MallocOn(0, 1<<20)
	if err != nil {
		t.Fatalf("MallocOn: %v", err)
	}
	defer Free(p)

	after := MinAvailDeviceMemory()
	if after != before-1<<20 {
		t.Errorf("MinAvailDeviceMemory = %d, want %d", after, before-1<<20)
	}
}

func TestWorkspaceRegistry(t *testing.T) {
	resetState(t)
	withDevices(t, 1)

	w := WS(WSConvForward)
	if w == nil || WS(WSConvForward) != w {
		t.Fatal("workspace was not cached by id")
	}
	if w.ID() != WSConvForward || w.Device() != 0 {
		t.Errorf("workspace id/device = %d/%d, want %d/0", w.ID(), w.Device(), WSConvForward)
	}

	defer func() {
		if _, ok := recover().(*FatalError); !ok {
			t.Error("out of range workspace id did not raise a fatal error")
		}
	}()
	WS(WSTotal)
}

func TestShutdownReleasesEverything(t *testing.T) {
	resetState(t)
	withDevices(t, 1)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c := Get()
	s := c.Stream(0)
	c.BLAS(0)
	flag := Lifecycle()

	waited := make(chan bool, 1)
	go func() { waited <- flag.Wait() }()

	Shutdown()

	select {
	case ok := <-waited:
		if ok {
			t.Error("lifecycle waiter saw a set flag, want disarm")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("lifecycle waiter still parked after Shutdown")
	}

	if !s.Done().IsSet() {
		t.Error("lane stream still running after Shutdown")
	}
	if ThreadCount() != 0 {
		t.Errorf("ThreadCount after Shutdown = %d, want 0", ThreadCount())
	}
	if Lifecycle() == flag {
		t.Error("Shutdown did not install a fresh lifecycle flag")
	}
	if Lifecycle().Disarmed() {
		t.Error("fresh lifecycle flag is disarmed")
	}

	// The package is usable again.
	if Get() == c {
		t.Error("Get after Shutdown returned a closed context")
	}
}

func TestParseBrew(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Brew
		ok   bool
	}{
		{"cpu", CPU, true},
		{"CPU", CPU, true},
		{"gpu", GPU, true},
		{"Gpu", GPU, true},
		{"tpu", CPU, false},
	} {
		got, err := ParseBrew(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParseBrew(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseBrew(%q) accepted an unknown mode", tc.in)
		}
	}
}
