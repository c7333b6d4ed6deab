package brew

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the execution state as Prometheus metrics. Values are
// read at scrape time from the live registries, so one Collector
// registered at startup keeps reporting without bookkeeping hooks in the
// hot paths.
type Collector struct {
	threads    *prometheus.Desc
	streams    *prometheus.Desc
	handles    *prometheus.Desc
	solvers    *prometheus.Desc
	mode       *prometheus.Desc
	seeds      *prometheus.Desc
	epochs     *prometheus.Desc
	workspaces *prometheus.Desc
	deviceMem  *prometheus.Desc
}

// NewCollector returns a collector for the package state. Register it on
// a prometheus.Registry; the package itself never registers.
func NewCollector() *Collector {
	return &Collector{
		threads: prometheus.NewDesc("brew_threads",
			"Cached execution contexts.", nil, nil),
		streams: prometheus.NewDesc("brew_streams_live",
			"Streams with a running worker.", nil, nil),
		handles: prometheus.NewDesc("brew_engine_handles",
			"Live native engine handles.", []string{"engine"}, nil),
		solvers: prometheus.NewDesc("brew_solvers",
			"Configured solver threads.", nil, nil),
		mode: prometheus.NewDesc("brew_mode",
			"Execution mode, 0 CPU 1 GPU.", nil, nil),
		seeds: prometheus.NewDesc("brew_seeds_issued_total",
			"Solver seeds handed out by NextSeed.", nil, nil),
		epochs: prometheus.NewDesc("brew_epochs",
			"Smallest reported epoch estimate.", nil, nil),
		workspaces: prometheus.NewDesc("brew_workspace_bytes",
			"Reserved shared workspace size.", []string{"workspace"}, nil),
		deviceMem: prometheus.NewDesc("brew_device_memory_bytes",
			"Device memory by state.", []string{"device", "state"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.threads
	ch <- c.streams
	ch <- c.handles
	ch <- c.solvers
	ch <- c.mode
	ch <- c.seeds
	ch <- c.epochs
	ch <- c.workspaces
	ch <- c.deviceMem
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.threads, prometheus.GaugeValue, float64(ThreadCount()))
	ch <- prometheus.MustNewConstMetric(c.streams, prometheus.GaugeValue, float64(streamsLive.Load()))
	ch <- prometheus.MustNewConstMetric(c.handles, prometheus.GaugeValue, float64(blasEngines.liveCount()), "blas")
	ch <- prometheus.MustNewConstMetric(c.handles, prometheus.GaugeValue, float64(dnnEngines.liveCount()), "dnn")
	ch <- prometheus.MustNewConstMetric(c.solvers, prometheus.GaugeValue, float64(SolverCount()))
	ch <- prometheus.MustNewConstMetric(c.mode, prometheus.GaugeValue, float64(Mode()))
	ch <- prometheus.MustNewConstMetric(c.seeds, prometheus.CounterValue, float64(seedsIssued.Load()))
	ch <- prometheus.MustNewConstMetric(c.epochs, prometheus.GaugeValue, float64(EpochCount()))

	var sizes [WSTotal]int
	ctxMu.Lock()
	for id, w := range workspaces {
		if w != nil {
			sizes[id] = w.Size()
		}
	}
	ctxMu.Unlock()
	for id, size := range sizes {
		ch <- prometheus.MustNewConstMetric(c.workspaces, prometheus.GaugeValue, float64(size), workspaceName(id))
	}

	mp := memoryPool()
	for _, d := range registry().devs {
		dev := strconv.Itoa(d.ID)
		allocated, peak := mp.GetStats(d.ID)
		ch <- prometheus.MustNewConstMetric(c.deviceMem, prometheus.GaugeValue, float64(allocated), dev, "allocated")
		ch <- prometheus.MustNewConstMetric(c.deviceMem, prometheus.GaugeValue, float64(peak), dev, "peak")
		ch <- prometheus.MustNewConstMetric(c.deviceMem, prometheus.GaugeValue, float64(mp.AvailMemory(d.ID)), dev, "available")
	}
}

func workspaceName(id int) string {
	switch id {
	case WSConvForward:
		return "conv_forward"
	case WSConvBackwardData:
		return "conv_backward_data"
	case WSConvBackwardFilter:
		return "conv_backward_filter"
	default:
		return strconv.Itoa(id)
	}
}

var _ prometheus.Collector = (*Collector)(nil)
