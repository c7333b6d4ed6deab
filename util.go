package brew

import (
	"math"
	"strconv"
)

// Integer covers the built-in integer types accepted by the alignment
// helpers.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// AlignDown rounds val down to a multiple of 2^power.
func AlignDown[T Integer](val T, power uint) T {
	return val &^ (T(1)<<power - 1)
}

// AlignUp rounds val up to a multiple of 2^power.
func AlignUp[T Integer](val T, power uint) T {
	mask := T(1)<<power - 1
	if val&mask == 0 {
		return val
	}
	return (val | mask) + 1
}

// IsEven reports whether val is even.
func IsEven[T Integer](val T) bool { return val&1 == 0 }

// Even rounds val up to the nearest even value.
func Even[T Integer](val T) T {
	if val&1 != 0 {
		return val + 1
	}
	return val
}

// MemFmt formats a byte count for log lines, scaling to K, M or G in
// decimal steps and keeping two digits of fraction.
func MemFmt(val float64) string {
	switch {
	case val >= 1e7:
		return fmtShort(math.Round(val*1e-7)*0.01) + "G"
	case val >= 1e4:
		return fmtShort(math.Round(val*1e-4)*0.01) + "M"
	case val >= 1e1:
		return fmtShort(math.Round(val*1e-1)*0.01) + "K"
	default:
		return fmtShort(val)
	}
}

// Round1 rounds val to one decimal digit.
func Round1(val float64) float32 {
	return float32(math.Round(val*10) * 0.1)
}

// Round2 rounds val to two decimal digits.
func Round2(val float64) float32 {
	return float32(math.Round(val*100) * 0.01)
}

func fmtShort(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 32)
}
