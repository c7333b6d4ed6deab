package brew

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"os"
	"time"
)

// splitmix64 scrambles a 64-bit value through the finalizer of the
// splitmix generator. It derives per-solver seeds from the root seed and
// keys the generator backends.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

// seedgen draws a seed from the system entropy source, falling back to a
// time and pid mix when entropy is unavailable.
func seedgen() uint64 {
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err == nil {
		return binary.LittleEndian.Uint64(b[:])
	}
	logger().Info("system entropy source not available, using fallback seed")
	return splitmix64(uint64(time.Now().UnixNano()) ^ uint64(os.Getpid())<<32)
}

// Generator is the backend behind an RNG: an unbounded stream of 64-bit
// draws plus the seed it was built from. Numeric code that wants raw
// draws can take the backend directly through RNG.Generator.
type Generator interface {
	Uint64() uint64
	seed() uint64
	label() string
}

// hostGenerator drives CPU mode draws with an in-process PCG.
type hostGenerator struct {
	src  *rand.Rand
	root uint64
}

func newHostGenerator(seed uint64) *hostGenerator {
	return &hostGenerator{
		src:  rand.New(rand.NewPCG(seed, splitmix64(seed))),
		root: seed,
	}
}

func (g *hostGenerator) Uint64() uint64 { return g.src.Uint64() }
func (g *hostGenerator) seed() uint64   { return g.root }
func (g *hostGenerator) label() string  { return "pcg" }

// deviceGenerator stands in for the device library generator. It is
// counter based: draw i is a pure function of (seed, i), which is what
// makes device sequences replayable from a seed alone.
type deviceGenerator struct {
	root uint64
	key  uint64
	ctr  uint64
}

func newDeviceGenerator(seed uint64) *deviceGenerator {
	return &deviceGenerator{
		root: seed,
		key:  splitmix64(seed ^ 0xD2B74407B1CE6E93),
	}
}

func (g *deviceGenerator) Uint64() uint64 {
	v := splitmix64(g.key ^ g.ctr)
	g.ctr++
	return v
}

func (g *deviceGenerator) seed() uint64  { return g.root }
func (g *deviceGenerator) label() string { return "counter" }

// RNG is the random source facade handed to compute code. The backend is
// picked by the execution mode at creation time, so callers draw the same
// way in both modes. An RNG belongs to one thread; nothing in it is safe
// for concurrent draws.
type RNG struct {
	gen Generator
}

// NewRNG creates a generator seeded from the entropy source.
func NewRNG() *RNG {
	return NewRNGSeed(seedgen())
}

// NewRNGSeed creates a generator for the current execution mode with the
// given seed.
func NewRNGSeed(seed uint64) *RNG {
	return newRNGFor(Mode(), seed)
}

func newRNGFor(mode Brew, seed uint64) *RNG {
	if mode == GPU {
		return &RNG{gen: newDeviceGenerator(seed)}
	}
	return &RNG{gen: newHostGenerator(seed)}
}

// Seed returns the seed the generator was created with.
func (r *RNG) Seed() uint64 {
	return r.gen.seed()
}

// Generator exposes the backing generator as an opaque draw source.
func (r *RNG) Generator() Generator {
	return r.gen
}

// Backend names the active backend for diagnostics.
func (r *RNG) Backend() string {
	return r.gen.label()
}

// Clone returns a generator with the same seed configuration, restarted at
// the beginning of its sequence. Draw position is deliberately not part of
// the copied state.
func (r *RNG) Clone() *RNG {
	if _, ok := r.gen.(*deviceGenerator); ok {
		return &RNG{gen: newDeviceGenerator(r.gen.seed())}
	}
	return &RNG{gen: newHostGenerator(r.gen.seed())}
}

// Uint64 returns the next draw.
func (r *RNG) Uint64() uint64 {
	return r.gen.Uint64()
}

// Uint32 returns the next draw truncated to 32 bits.
func (r *RNG) Uint32() uint32 {
	return uint32(r.gen.Uint64() >> 32)
}

// Float64 returns a draw uniform in [0, 1).
func (r *RNG) Float64() float64 {
	return float64(r.gen.Uint64()>>11) / (1 << 53)
}

// Float32 returns a draw uniform in [0, 1).
func (r *RNG) Float32() float32 {
	return float32(r.gen.Uint64()>>40) / (1 << 24)
}

// IntN returns a draw uniform in [0, n). n must be positive.
func (r *RNG) IntN(n int) int {
	if n <= 0 {
		fatalf(ErrTypeInvalidArg, "RNG.IntN", "n must be positive, got %d", n)
	}
	return int(r.gen.Uint64() % uint64(n))
}
