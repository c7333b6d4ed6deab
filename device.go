package brew

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"text/tabwriter"
)

// Device represents a virtual compute device. Devices partition the host:
// each gets an equal share of cores and memory and reports the capability
// level of the host SIMD units. The inventory is fixed at first probe and
// configured through the environment, so failure paths (an offline device,
// an empty machine) can be exercised without special hardware.
type Device struct {
	ID         int    // Unique device identifier
	Name       string // Human-readable device name
	TotalMem   uint64 // Total device memory in bytes
	NumCores   int    // Number of CPU cores assigned
	MaxThreads int    // Maximum concurrent threads
	Capability int    // Compute capability level
}

type deviceRegistry struct {
	devs    []Device
	offline map[int]bool
}

var deviceReg atomic.Pointer[deviceRegistry]

// registry returns the process device inventory, probing the environment on
// first use.
func registry() *deviceRegistry {
	if reg := deviceReg.Load(); reg != nil {
		return reg
	}
	deviceReg.CompareAndSwap(nil, probeDevices())
	return deviceReg.Load()
}

func probeDevices() *deviceRegistry {
	offline := make(map[int]bool)
	if v := os.Getenv(EnvOfflineDevices); v != "" {
		for _, field := range strings.Split(v, ",") {
			if id, err := strconv.Atoi(strings.TrimSpace(field)); err == nil {
				offline[id] = true
			}
		}
	}

	v := os.Getenv(EnvVisibleDevices)
	if v == "" {
		return newDeviceRegistry(defaultDeviceCount, offline)
	}
	// Comma form selects host slices the way CUDA_VISIBLE_DEVICES does;
	// a bare integer is a device count.
	if strings.Contains(v, ",") {
		if hosts := parseDeviceList(v); len(hosts) > 0 {
			return newDeviceRegistryFrom(hosts, offline)
		}
		return newDeviceRegistry(defaultDeviceCount, offline)
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return newDeviceRegistry(n, offline)
	}
	logger().Warn("ignoring malformed device visibility", "var", EnvVisibleDevices, "value", v)
	return newDeviceRegistry(defaultDeviceCount, offline)
}

// parseDeviceList reads comma-separated host slice ordinals. As with
// CUDA_VISIBLE_DEVICES, the list is honored up to the first malformed,
// negative or repeated entry; everything from that entry on is dropped.
func parseDeviceList(v string) []int {
	var hosts []int
	seen := make(map[int]bool)
	for _, field := range strings.Split(v, ",") {
		field = strings.TrimSpace(field)
		h, err := strconv.Atoi(field)
		if err != nil || h < 0 || seen[h] {
			logger().Warn("device list truncated at invalid entry",
				"var", EnvVisibleDevices, "entry", field)
			break
		}
		seen[h] = true
		hosts = append(hosts, h)
	}
	return hosts
}

// newDeviceRegistry builds an inventory of count devices over the first
// count host slices.
func newDeviceRegistry(count int, offline map[int]bool) *deviceRegistry {
	if count <= 0 {
		if offline == nil {
			offline = make(map[int]bool)
		}
		return &deviceRegistry{offline: offline}
	}
	hosts := make([]int, count)
	for i := range hosts {
		hosts[i] = i
	}
	return newDeviceRegistryFrom(hosts, offline)
}

// newDeviceRegistryFrom builds an inventory from host slice ordinals. The
// host is partitioned into max(ordinal)+1 slices and the listed slices
// become devices 0..len-1 in list order, each named after its slice.
// Hiding a slice never grows the visible ones.
func newDeviceRegistryFrom(hosts []int, offline map[int]bool) *deviceRegistry {
	if offline == nil {
		offline = make(map[int]bool)
	}
	reg := &deviceRegistry{offline: offline}
	if len(hosts) == 0 {
		return reg
	}

	slices := 0
	for _, h := range hosts {
		if h+1 > slices {
			slices = h + 1
		}
	}
	mem := totalSystemMemory() / uint64(slices)
	cores := runtime.NumCPU() / slices
	if cores < 1 {
		cores = 1
	}
	level := capabilityLevel()
	for i, h := range hosts {
		reg.devs = append(reg.devs, Device{
			ID:         i,
			Name:       fmt.Sprintf("CPU-%d", h),
			TotalMem:   mem,
			NumCores:   cores,
			MaxThreads: cores * 2,
			Capability: level,
		})
	}
	return reg
}

func (r *deviceRegistry) usable(id int) bool {
	return id >= 0 && id < len(r.devs) && !r.offline[id]
}

// DeviceCount returns the number of devices in the inventory, usable or not.
func DeviceCount() int {
	return len(registry().devs)
}

// CheckDevice reports whether the device exists and is usable.
func CheckDevice(id int) bool {
	return registry().usable(id)
}

// FindDevice returns the first usable device at or after startID, or -1
// when none exists.
func FindDevice(startID int) int {
	reg := registry()
	if startID < 0 {
		startID = 0
	}
	for id := startID; id < len(reg.devs); id++ {
		if reg.usable(id) {
			return id
		}
	}
	return -1
}

// GetDeviceProperties returns device properties
func GetDeviceProperties(id int) (Device, error) {
	reg := registry()
	if id < 0 || id >= len(reg.devs) {
		return Device{}, NewInvalidArgError("GetDeviceProperties", fmt.Sprintf("invalid device ID: %d", id))
	}
	return reg.devs[id], nil
}

// DeviceCapability returns the compute capability of the device. An id
// outside the inventory is a configuration fault.
func DeviceCapability(id int) int {
	reg := registry()
	if id < 0 || id >= len(reg.devs) {
		fatalf(ErrTypeConfig, "DeviceCapability", "invalid device ID: %d", id)
	}
	return reg.devs[id].Capability
}

// DeviceQuery formats the device inventory for display, one device per
// line with memory, cores, capability and availability.
func DeviceQuery() string {
	reg := registry()
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMEMORY\tCORES\tCAPABILITY\tSTATE")
	for _, d := range reg.devs {
		state := "online"
		if reg.offline[d.ID] {
			state = "offline"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d.%d\t%s\n",
			d.ID, d.Name, MemFmt(float64(d.TotalMem)), d.NumCores,
			d.Capability/10, d.Capability%10, state)
	}
	w.Flush()
	return sb.String()
}
