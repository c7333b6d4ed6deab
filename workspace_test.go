package brew

import (
	"errors"
	"testing"
)

func TestWorkspaceGrowsMonotonically(t *testing.T) {
	resetState(t)
	withDevices(t, 1)

	w := WS(WSConvBackwardData)
	if w.Size() != 0 {
		t.Fatalf("fresh workspace size = %d, want 0", w.Size())
	}

	if err := w.Reserve(1000); err != nil {
		t.Fatalf("Reserve(1000): %v", err)
	}
	if w.Size() != 1000 {
		t.Errorf("size = %d, want 1000", w.Size())
	}
	if len(w.Bytes()) != 1000 {
		t.Errorf("byte view length = %d, want 1000", len(w.Bytes()))
	}

	// Smaller reservations keep the high-water span.
	if err := w.Reserve(500); err != nil {
		t.Fatalf("Reserve(500): %v", err)
	}
	if w.Size() != 1000 {
		t.Errorf("size after smaller reserve = %d, want 1000", w.Size())
	}

	if err := w.Reserve(4096); err != nil {
		t.Fatalf("Reserve(4096): %v", err)
	}
	if w.Size() != 4096 {
		t.Errorf("size after growth = %d, want 4096", w.Size())
	}

	// Growth released the old span before taking the new one.
	allocated, _ := memoryPool().GetStats(0)
	if allocated != 4096 {
		t.Errorf("pool holds %d bytes for the workspace, want 4096", allocated)
	}
}

func TestWorkspaceReserveRejectsBadSizes(t *testing.T) {
	resetState(t)
	withDevices(t, 1)

	w := WS(WSConvForward)
	for _, n := range []int{0, -5} {
		if err := w.Reserve(n); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("Reserve(%d) = %v, want ErrInvalidSize", n, err)
		}
	}
}

func TestWorkspaceRelease(t *testing.T) {
	resetState(t)
	withDevices(t, 1)

	w := WS(WSConvBackwardFilter)
	if err := w.Reserve(256); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := w.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if w.Size() != 0 {
		t.Errorf("size after release = %d, want 0", w.Size())
	}
	if w.Bytes() != nil {
		t.Error("released workspace still has a byte view")
	}
	if err := w.Release(); err != nil {
		t.Errorf("releasing an empty workspace: %v", err)
	}

	// Reusable after release.
	if err := w.Reserve(64); err != nil {
		t.Fatalf("Reserve after release: %v", err)
	}
	if w.Size() != 64 {
		t.Errorf("size = %d, want 64", w.Size())
	}
}

func TestWorkspaceFloat32View(t *testing.T) {
	resetState(t)
	withDevices(t, 1)

	w := WS(WSConvForward)
	if err := w.Reserve(64); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	f := w.Float32()
	if len(f) != 16 {
		t.Fatalf("float32 view length = %d, want 16", len(f))
	}
	f[3] = 1.5
	if w.Float32()[3] != 1.5 {
		t.Error("views do not share the span")
	}
}
