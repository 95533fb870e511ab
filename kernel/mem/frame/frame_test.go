package frame

import (
	"kmicro/kernel/mem"
	"testing"
)

func reset() {
	for i := range bitmap {
		bitmap[i] = 0
	}
}

func TestAllocUnique(t *testing.T) {
	reset()
	defer reset()

	seen := make(map[mem.Frame]bool)
	for i := 0; i < 1024; i++ {
		f, err := Alloc()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !f.Valid() {
			t.Fatalf("allocator ran out of frames prematurely at iteration %d", i)
		}
		if seen[f] {
			t.Fatalf("frame %d allocated twice without an intervening free", f)
		}
		seen[f] = true
	}
}

func TestFrameConservation(t *testing.T) {
	reset()
	defer reset()

	var allocated []mem.Frame
	for {
		f, err := Alloc()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !f.Valid() {
			break
		}
		allocated = append(allocated, f)
	}

	if f, _ := Alloc(); f.Valid() {
		t.Fatal("expected allocator to be exhausted")
	}

	for _, f := range allocated {
		if err := Free(f); err != nil {
			t.Fatalf("unexpected error freeing frame %d: %v", f, err)
		}
	}

	reAllocated := make(map[mem.Frame]bool)
	for range allocated {
		f, err := Alloc()
		if err != nil || !f.Valid() {
			t.Fatalf("expected allocator to hand out %d distinct frames again", len(allocated))
		}
		if reAllocated[f] {
			t.Fatalf("frame %d handed out twice in the second pass", f)
		}
		reAllocated[f] = true
	}
}

func TestFrameTranslationRoundTrip(t *testing.T) {
	reset()
	defer reset()

	for i := 0; i < 4096; i++ {
		f := mem.Frame(i)
		if got := FrameIDToNum(FrameNumToID(f)); got != f {
			t.Fatalf("round trip mismatch: frame %d became %d", f, got)
		}
	}
}

func TestFrameLifecycle(t *testing.T) {
	reset()
	defer reset()

	f, err := Alloc()
	if err != nil || !f.Valid() {
		t.Fatalf("expected a valid frame, got %v (err=%v)", f, err)
	}

	if err := Free(f); err != nil {
		t.Fatalf("first free should succeed, got %v", err)
	}

	if err := Free(f); err == nil {
		t.Fatal("second free of the same frame should fail")
	}
}

func TestFreeInvalidFrame(t *testing.T) {
	reset()
	defer reset()

	if err := Free(mem.Frame(mem.NumFrames)); err == nil {
		t.Fatal("expected an error freeing an out-of-range frame")
	}
	if err := Free(mem.FrameNull); err == nil {
		t.Fatal("expected an error freeing the null frame")
	}
}
