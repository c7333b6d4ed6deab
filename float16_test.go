package brew

import (
	"math"
	"testing"
)

func TestFloat16RoundTrip(t *testing.T) {
	// Every value here is exactly representable in half precision, so the
	// conversion must be lossless in both directions.
	tests := []struct {
		name string
		val  float32
		bits Float16
	}{
		{"One", 1.0, 0x3C00},
		{"NegOne", -1.0, 0xBC00},
		{"Two", 2.0, 0x4000},
		{"NegTwo", -2.0, 0xC000},
		{"Half", 0.5, 0x3800},
		{"Pi_Truncated", 3.140625, 0x4248},
		{"MaxHalf", 65504, 0x7BFF},
		{"MinNormal", 6.103515625e-05, 0x0400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := FromFloat32(tt.val)
			if h != tt.bits {
				t.Errorf("FromFloat32(%v) = %#04x, want %#04x", tt.val, uint16(h), uint16(tt.bits))
			}
			if back := h.ToFloat32(); back != tt.val {
				t.Errorf("ToFloat32(%#04x) = %v, want %v", uint16(h), back, tt.val)
			}
		})
	}
}

func TestFloat16Specials(t *testing.T) {
	if got := FromFloat32(float32(math.Inf(1))); got != 0x7C00 {
		t.Errorf("FromFloat32(+Inf) = %#04x, want 0x7C00", uint16(got))
	}
	if got := FromFloat32(float32(math.Inf(-1))); got != 0xFC00 {
		t.Errorf("FromFloat32(-Inf) = %#04x, want 0xFC00", uint16(got))
	}
	if got := Float16(0x7C00).ToFloat32(); !math.IsInf(float64(got), 1) {
		t.Errorf("ToFloat32(0x7C00) = %v, want +Inf", got)
	}
	if got := Float16(0xFC00).ToFloat32(); !math.IsInf(float64(got), -1) {
		t.Errorf("ToFloat32(0xFC00) = %v, want -Inf", got)
	}

	nan := FromFloat32(float32(math.NaN()))
	if nan&float16ExponentMask != float16ExponentMask || nan&float16MantissaMask == 0 {
		t.Errorf("FromFloat32(NaN) = %#04x, not a half NaN", uint16(nan))
	}
	if got := nan.ToFloat32(); !math.IsNaN(float64(got)) {
		t.Errorf("ToFloat32(%#04x) = %v, want NaN", uint16(nan), got)
	}

	// Signed zeros survive the round trip.
	if got := FromFloat32(0); got != 0x0000 {
		t.Errorf("FromFloat32(0) = %#04x, want 0x0000", uint16(got))
	}
	negZero := FromFloat32(float32(math.Copysign(0, -1)))
	if negZero != 0x8000 {
		t.Errorf("FromFloat32(-0) = %#04x, want 0x8000", uint16(negZero))
	}
	if bits := math.Float32bits(negZero.ToFloat32()); bits != 0x80000000 {
		t.Errorf("ToFloat32(0x8000) bits = %#08x, want 0x80000000", bits)
	}
}

func TestFloat16Limits(t *testing.T) {
	// Values beyond the half range overflow to infinity.
	if got := FromFloat32(70000); got != 0x7C00 {
		t.Errorf("FromFloat32(70000) = %#04x, want +Inf", uint16(got))
	}
	if got := FromFloat32(-70000); got != 0xFC00 {
		t.Errorf("FromFloat32(-70000) = %#04x, want -Inf", uint16(got))
	}

	// Below the normal range the conversion flushes to signed zero.
	if got := FromFloat32(1e-5); got != 0x0000 {
		t.Errorf("FromFloat32(1e-5) = %#04x, want 0x0000", uint16(got))
	}
	if got := FromFloat32(-1e-5); got != 0x8000 {
		t.Errorf("FromFloat32(-1e-5) = %#04x, want 0x8000", uint16(got))
	}

	// Half subnormals still convert up exactly: 0x0001 is 2^-24.
	want := float32(math.Ldexp(1, -24))
	if got := Float16(0x0001).ToFloat32(); got != want {
		t.Errorf("ToFloat32(0x0001) = %g, want %g", got, want)
	}
}

func TestFloat16Slice(t *testing.T) {
	buf := make([]byte, 8)
	s := NewFloat16Slice(buf)

	if s.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", s.Len())
	}

	s.Set(0, 0x3C00)
	if buf[0] != 0x00 || buf[1] != 0x3C {
		t.Errorf("Set(0, 0x3C00) wrote bytes [%#02x %#02x], want little-endian [0x00 0x3C]", buf[0], buf[1])
	}
	if got := s.Get(0); got != 0x3C00 {
		t.Errorf("Get(0) = %#04x, want 0x3C00", uint16(got))
	}

	s.SetFloat32(3, 1.5)
	if got := s.GetFloat32(3); got != 1.5 {
		t.Errorf("GetFloat32(3) = %v, want 1.5", got)
	}
	// Untouched elements read as zero.
	if got := s.GetFloat32(1); got != 0 {
		t.Errorf("GetFloat32(1) = %v, want 0", got)
	}
}
