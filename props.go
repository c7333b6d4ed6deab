package brew

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Properties is a one-time snapshot of runtime and library identity:
// module, Go and engine versions, the kernel release, per-device
// capability levels and the instant the snapshot was taken. Later device
// or version changes do not flow into an existing snapshot, which keeps
// log preambles and elapsed-time reporting stable for the process life.
type Properties struct {
	initTime      time.Time
	brewVersion   string
	goVersion     string
	blasVersion   string
	dnnVersion    string
	driverVersion string
	capabilities  []int
}

var (
	propsOnce sync.Once
	props     *Properties
)

// Props returns the property snapshot, taking it on first call.
func Props() *Properties {
	propsOnce.Do(func() {
		version, _ := Version()
		if version == "" {
			version = "devel"
		}
		reg := registry()
		caps := make([]int, len(reg.devs))
		for i, d := range reg.devs {
			caps[i] = d.Capability
		}
		props = &Properties{
			initTime:      time.Now(),
			brewVersion:   version,
			goVersion:     runtime.Version(),
			blasVersion:   blasEngineVersion,
			dnnVersion:    dnnEngineVersion,
			driverVersion: osRelease(),
			capabilities:  caps,
		}
	})
	return props
}

// InitTime returns the snapshot instant.
func (p *Properties) InitTime() time.Time { return p.initTime }

// StartTime formats the snapshot instant for log preambles.
func (p *Properties) StartTime() string {
	return p.initTime.Format(time.ANSIC)
}

// BrewVersion returns the module version.
func (p *Properties) BrewVersion() string { return p.brewVersion }

// GoVersion returns the Go runtime version.
func (p *Properties) GoVersion() string { return p.goVersion }

// BLASVersion returns the linear algebra engine version.
func (p *Properties) BLASVersion() string { return p.blasVersion }

// DNNVersion returns the neural primitive engine version.
func (p *Properties) DNNVersion() string { return p.dnnVersion }

// DriverVersion returns the kernel release the snapshot was taken on.
func (p *Properties) DriverVersion() string { return p.driverVersion }

// DeviceCapability returns the capability level snapshotted for the
// device. An id outside the snapshot is a configuration fault.
func (p *Properties) DeviceCapability(id int) int {
	if id < 0 || id >= len(p.capabilities) {
		fatalf(ErrTypeConfig, "Properties.DeviceCapability", "invalid device ID: %d", id)
	}
	return p.capabilities[id]
}

// String formats the snapshot as a multi-line report.
func (p *Properties) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "version:  %s\n", p.brewVersion)
	fmt.Fprintf(&sb, "go:       %s\n", p.goVersion)
	fmt.Fprintf(&sb, "blas:     %s\n", p.blasVersion)
	fmt.Fprintf(&sb, "dnn:      %s\n", p.dnnVersion)
	fmt.Fprintf(&sb, "driver:   %s\n", p.driverVersion)
	fmt.Fprintf(&sb, "started:  %s\n", p.StartTime())
	for id, c := range p.capabilities {
		fmt.Fprintf(&sb, "device %d: capability %d.%d\n", id, c/10, c%10)
	}
	return sb.String()
}

// TimeFromInit formats the elapsed time since the property snapshot as
// h:mm:ss.mmm.
func TimeFromInit() string {
	d := time.Since(Props().initTime)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	ms := (d % time.Second) / time.Millisecond
	return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, s, ms)
}
