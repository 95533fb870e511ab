package vmem

import (
	"testing"

	"kmicro/kernel/mem"
)

func reset() {
	table = [mem.VmemMax]space{}
	flushEntryFn = func(uintptr) {}
	Init()
}

func allocFrame(t *testing.T, n uintptr) mem.Frame {
	t.Helper()
	return mem.Frame(n)
}

func TestCreateLinksKernelPDEs(t *testing.T) {
	reset()
	defer reset()

	kernelDir := 0
	table[Root].dir[kernelDir].SetFlags(1)

	h, err := Create()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table[h].dir[kernelDir] != table[Root].dir[kernelDir] {
		t.Fatal("expected kernel-range PDE to be shared with the root vmem")
	}
}

func TestCreateTableFull(t *testing.T) {
	reset()
	defer reset()

	for i := 1; i < mem.VmemMax; i++ {
		if _, err := Create(); err != nil {
			t.Fatalf("unexpected error at iteration %d: %v", i, err)
		}
	}

	if _, err := Create(); err == nil {
		t.Fatal("expected an error once the vmem table is full")
	}
}

func TestDestroyRootIsRejected(t *testing.T) {
	reset()
	defer reset()

	if err := Destroy(Root); err == nil {
		t.Fatal("expected destroying the root vmem to fail")
	}
}

func TestDestroyBusyVmemIsRejected(t *testing.T) {
	reset()
	defer reset()

	h, _ := Create()
	if err := Map(h, mem.UserBaseVirt, allocFrame(t, 5), mem.PageSize, true, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := Destroy(h); err == nil {
		t.Fatal("expected destroying a busy vmem to fail")
	}

	if _, err := Unmap(h, mem.UserBaseVirt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Destroy(h); err != nil {
		t.Fatalf("expected destroy to succeed once the vmem is no longer busy: %v", err)
	}
}

func TestMapUnmapRoundTrip(t *testing.T) {
	reset()
	defer reset()

	h, _ := Create()
	vaddr := uintptr(mem.UserBaseVirt)
	frame := allocFrame(t, 42)

	if err := Map(h, vaddr, frame, mem.PageSize, true, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _, _, err := Info(h, vaddr)
	if err != nil || got != frame {
		t.Fatalf("expected frame %d, got %d (err=%v)", frame, got, err)
	}

	unmapped, err := Unmap(h, vaddr)
	if err != nil || unmapped != frame {
		t.Fatalf("expected Unmap to return frame %d, got %d (err=%v)", frame, unmapped, err)
	}

	if _, err := Unmap(h, vaddr); err == nil {
		t.Fatal("expected a second unmap at the same address to fail")
	}
}

func TestMapRejectsDoubleMap(t *testing.T) {
	reset()
	defer reset()

	h, _ := Create()
	vaddr := uintptr(mem.UserBaseVirt)

	if err := Map(h, vaddr, allocFrame(t, 1), mem.PageSize, true, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Map(h, vaddr, allocFrame(t, 2), mem.PageSize, true, false); err == nil {
		t.Fatal("expected mapping an already-mapped address to fail")
	}
}

func TestMapRejectsKernelRange(t *testing.T) {
	reset()
	defer reset()

	h, _ := Create()
	if err := Map(h, 0x1000, allocFrame(t, 1), mem.PageSize, true, false); err == nil {
		t.Fatal("expected mapping a kernel-range address through vmem_map to fail")
	}
}

func TestCtrlUpdatesPermissions(t *testing.T) {
	reset()
	defer reset()

	h, _ := Create()
	vaddr := uintptr(mem.UserBaseVirt)
	frame := allocFrame(t, 7)

	if err := Map(h, vaddr, frame, mem.PageSize, false, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := Ctrl(h, vaddr, true, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, writable, executable, err := Info(h, vaddr)
	if err != nil || got != frame || !writable || !executable {
		t.Fatalf("expected frame=%d writable=true executable=true, got frame=%d writable=%v executable=%v (err=%v)",
			frame, got, writable, executable, err)
	}
}

func TestInvalidHandleIsRejected(t *testing.T) {
	reset()
	defer reset()

	if _, _, _, err := Info(Handle(mem.VmemMax), mem.UserBaseVirt); err == nil {
		t.Fatal("expected an out-of-range handle to fail")
	}

	if err := Map(VmemNull, mem.UserBaseVirt, allocFrame(t, 1), mem.PageSize, true, false); err == nil {
		t.Fatal("expected VmemNull to fail as a handle")
	}
}
