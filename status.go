package brew

import (
	"fmt"
	"strings"
	"sync/atomic"
	"text/tabwriter"
)

// rssPeak is the high-water resident set size over all snapshots taken.
var rssPeak atomic.Uint64

// Status is a point-in-time snapshot of the execution state, for status
// surfaces and debugging. Counters are read without stopping the world,
// so fields are individually consistent but not a transaction.
type Status struct {
	Mode           Brew
	Devices        []int
	Threads        int
	Streams        int
	BLASHandles    int
	DNNHandles     int
	SolverCount    int
	RootSeed       uint64
	SeedsIssued    uint64
	EpochCount     uint64
	RestoredIter   int64
	RSS            uint64
	RSSPeak        uint64
	MinAvailMemory uint64
	Workspaces     [WSTotal]int
}

// Snapshot captures the current execution state.
func Snapshot() Status {
	rss := RSS()
	atomicMax(&rssPeak, rss)
	st := Status{
		Mode:           Mode(),
		Devices:        Devices(),
		Threads:        ThreadCount(),
		Streams:        int(streamsLive.Load()),
		BLASHandles:    blasEngines.liveCount(),
		DNNHandles:     dnnEngines.liveCount(),
		SolverCount:    SolverCount(),
		RootSeed:       RootSeed(),
		SeedsIssued:    seedsIssued.Load(),
		EpochCount:     EpochCount(),
		RestoredIter:   RestoredIter(),
		RSS:            rss,
		RSSPeak:        rssPeak.Load(),
		MinAvailMemory: MinAvailDeviceMemory(),
	}
	ctxMu.Lock()
	for id, w := range workspaces {
		if w != nil {
			st.Workspaces[id] = w.Size()
		}
	}
	ctxMu.Unlock()
	return st
}

// String renders the snapshot as an aligned key/value block.
func (s Status) String() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "mode\t%s\n", s.Mode)
	fmt.Fprintf(w, "devices\t%v\n", s.Devices)
	fmt.Fprintf(w, "threads\t%d\n", s.Threads)
	fmt.Fprintf(w, "streams\t%d\n", s.Streams)
	fmt.Fprintf(w, "blas handles\t%d\n", s.BLASHandles)
	fmt.Fprintf(w, "dnn handles\t%d\n", s.DNNHandles)
	fmt.Fprintf(w, "solvers\t%d\n", s.SolverCount)
	if s.RootSeed == SeedNotSet {
		fmt.Fprintf(w, "root seed\tunset\n")
	} else {
		fmt.Fprintf(w, "root seed\t%d\n", s.RootSeed)
	}
	fmt.Fprintf(w, "seeds issued\t%d\n", s.SeedsIssued)
	fmt.Fprintf(w, "epoch count\t%d\n", s.EpochCount)
	fmt.Fprintf(w, "restored iter\t%d\n", s.RestoredIter)
	fmt.Fprintf(w, "rss\t%s (peak %s)\n", MemFmt(float64(s.RSS)), MemFmt(float64(s.RSSPeak)))
	fmt.Fprintf(w, "min avail memory\t%s\n", MemFmt(float64(s.MinAvailMemory)))
	for id, size := range s.Workspaces {
		fmt.Fprintf(w, "workspace %s\t%s\n", workspaceName(id), MemFmt(float64(size)))
	}
	w.Flush()
	return sb.String()
}
