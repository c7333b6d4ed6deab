// Package brew configuration constants
package brew

// Execution lane groups
const (
	// Compute lane groups available to each solver thread
	MaxComputeGroups = 2

	// Dedicated lane group for host/device data transfer
	TransferGroup = MaxComputeGroups

	// Total lane groups per thread (compute groups plus the transfer lane)
	GroupCount = MaxComputeGroups + 1
)

// Seed handling
const (
	// SeedNotSet marks an absent seed. Draws fall back to the entropy
	// source until a real seed is installed.
	SeedNotSet = ^uint64(0)

	// epochNotSet is the epoch sentinel before any trainer reports
	epochNotSet = ^uint64(0)

	// restoredIterNotSet is the snapshot iteration sentinel
	restoredIterNotSet = -1
)

// Workspace identifiers
const (
	// Forward convolution scratch
	WSConvForward = iota

	// Backward data convolution scratch
	WSConvBackwardData

	// Backward filter convolution scratch
	WSConvBackwardFilter

	// Number of shared workspaces
	WSTotal
)

// Native engine emulation limits
const (
	// Handle table capacity per engine
	MaxEngineHandles = 4096

	// Task queue depth per stream
	StreamQueueDepth = 64
)

// Memory pool parameters
const (
	// Minimum allocation size to prevent fragmentation
	MinAllocationSize = 64

	// Memory alignment for allocations
	MemoryAlignment = 64

	// Free list size threshold for reuse
	FreeListThreshold = 100
)

// Device defaults
const (
	// Fallback host memory size when the platform probe fails
	defaultSystemMemory = 16 * 1024 * 1024 * 1024 // 16GB

	// Device count when the environment configures none
	defaultDeviceCount = 1
)

// Environment variables read at device discovery
const (
	// EnvVisibleDevices selects the virtual devices: a bare integer is a
	// device count, a comma list picks host slices like CUDA_VISIBLE_DEVICES
	EnvVisibleDevices = "BREW_VISIBLE_DEVICES"

	// EnvOfflineDevices lists device ordinals to mark unusable
	EnvOfflineDevices = "BREW_OFFLINE_DEVICES"
)

// Numerical constants
const (
	// Machine epsilon for float32
	Float32Epsilon = 1.192092896e-07

	// Maximum ULP difference for float32 comparisons
	MaxULPDiff = 4
)
