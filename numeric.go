package brew

import "math"

// Kind tags the numeric element types that compute code runs over. Handle
// and tolerance selection key off it instead of compile-time type switches.
type Kind int

const (
	KindFloat32 Kind = iota
	KindFloat64
	KindFloat16
	KindInt32
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindFloat16:
		return "float16"
	case KindInt32:
		return "int32"
	default:
		return "unknown"
	}
}

// Size returns the element size in bytes.
func (k Kind) Size() int {
	switch k {
	case KindFloat32, KindInt32:
		return 4
	case KindFloat64:
		return 8
	case KindFloat16:
		return 2
	default:
		fatalf(ErrTypeConfig, "Kind.Size", "unknown numeric kind %d", int(k))
		return 0
	}
}

// Precise reports whether the kind carries enough mantissa to be treated as
// exact by tolerance selection. Half precision and integers are not.
func (k Kind) Precise() bool {
	return k == KindFloat32 || k == KindFloat64
}

// Consts holds the per-kind constants compute code needs without knowing
// the element type: the additive and multiplicative identities and the
// representable extremes. Min is the smallest positive normal value and
// Eps the unit of least precision at 1.
type Consts struct {
	Zero, One float64
	Max, Min  float64
	Eps       float64
}

// Half precision extremes as bit patterns.
const (
	maxFloat16Bits Float16 = 0x7BFF
	minFloat16Bits Float16 = 0x0400
	epsFloat16Bits Float16 = 0x1001
)

// ConstsOf returns the constants for kind. An unknown kind is a
// configuration fault and panics.
func ConstsOf(k Kind) Consts {
	switch k {
	case KindFloat32:
		return Consts{Zero: 0, One: 1, Max: math.MaxFloat32, Min: 1.1754943508222875e-38, Eps: 1.1920928955078125e-07}
	case KindFloat64:
		return Consts{Zero: 0, One: 1, Max: math.MaxFloat64, Min: 2.2250738585072014e-308, Eps: 2.220446049250313e-16}
	case KindFloat16:
		return Consts{
			Zero: 0, One: 1,
			Max: float64(maxFloat16Bits.ToFloat32()),
			Min: float64(minFloat16Bits.ToFloat32()),
			Eps: float64(epsFloat16Bits.ToFloat32()),
		}
	case KindInt32:
		return Consts{Zero: 0, One: 1, Max: math.MaxInt32, Min: 1, Eps: 1}
	default:
		fatalf(ErrTypeConfig, "ConstsOf", "unknown numeric kind %d", int(k))
		return Consts{}
	}
}

// Tol picks a comparison tolerance by precision: fine for exact kinds,
// coarse for half precision and integers.
func Tol(k Kind, fine, coarse float64) float64 {
	if k.Precise() {
		return fine
	}
	return coarse
}

// Tol2 is Tol with a CPU-mode override. Reference paths run with their own
// tolerance regardless of element precision.
func Tol2(k Kind, fine, coarse, cpuTol float64) float64 {
	if Mode() == CPU {
		return cpuTol
	}
	return Tol(k, fine, coarse)
}
