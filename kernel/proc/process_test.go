package proc

import (
	"testing"
	"time"

	"kmicro/kernel"
	"kmicro/kernel/iam"
	"kmicro/kernel/mem"
	"kmicro/kernel/vmem"
)

func resetProc() {
	processes = [mem.ProcessMax]pcb{}
	memWriteFn = func(uintptr, []byte) {}
	enterUserFn = func(uintptr) {}

	vmem.Init()
	iam.Init()
	resetThreads()
	Init()
}

// testImage builds a minimal one-segment ELF32 executable, mirroring the
// fixture builder in the elf package's own tests.
func testImage(t *testing.T) []byte {
	t.Helper()

	const ehdrSize = 52
	const phdrSize = 32
	fileBytes := []byte{0xf4}

	buf := make([]byte, ehdrSize+phdrSize+len(fileBytes))
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4], buf[5], buf[6] = 1, 1, 1

	le32 := func(off int, v uint32) {
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
		buf[off+2] = byte(v >> 16)
		buf[off+3] = byte(v >> 24)
	}
	le16 := func(off int, v uint16) {
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
	}

	le16(16, 2) // e_type = ET_EXEC
	le16(18, 3) // e_machine = EM_386
	le32(20, 1) // e_version
	le32(24, 0x80000000)
	le32(28, ehdrSize) // e_phoff
	le16(40, ehdrSize)
	le16(42, phdrSize)
	le16(44, 1)

	phOff := ehdrSize
	le32(phOff+0, 1) // p_type = PT_LOAD
	le32(phOff+4, ehdrSize+phdrSize)
	le32(phOff+8, 0x80000000)
	le32(phOff+12, 0x80000000)
	le32(phOff+16, uint32(len(fileBytes)))
	le32(phOff+20, 4096)
	le32(phOff+24, 5)
	le32(phOff+28, 4)

	copy(buf[ehdrSize+phdrSize:], fileBytes)
	return buf
}

func TestProcessCreateAndExit(t *testing.T) {
	resetProc()
	defer resetProc()

	raw := testImage(t)
	pid, err := Create(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pid == KernelProc {
		t.Fatal("expected Create to avoid the reserved kernel process slot")
	}

	vh, id, err := Info(pid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vh == vmem.Root || id == iam.Root {
		t.Fatal("expected a fresh vmem and identity, not the root handles")
	}

	if err := Exit(pid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := Info(pid); err == nil {
		t.Fatal("expected Info on an exited process to fail")
	}
}

func TestExitProtectsKernelProcess(t *testing.T) {
	resetProc()
	defer resetProc()

	if err := Exit(KernelProc); err == nil {
		t.Fatal("expected exiting the kernel process to fail")
	}
}

func TestDoProcessSetupWritesSegmentsAndEntersUser(t *testing.T) {
	resetProc()
	defer resetProc()

	var wrote []uintptr
	memWriteFn = func(vaddr uintptr, data []byte) { wrote = append(wrote, vaddr) }

	entered := make(chan uintptr, 1)
	enterUserFn = func(entry uintptr) { entered <- entry }

	// No frame is available for the user stack, so vmem.Attach fails without
	// touching the TLB and do_process_setup goes on to enter user mode.
	mem.SetFrameAllocator(func() (mem.Frame, *kernel.Error) {
		return mem.FrameNull, &kernel.Error{Module: "test", Message: "no frames"}
	})

	raw := testImage(t)
	pid, err := Create(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Yield() // launch the new process's main thread, which runs do_process_setup

	var entry uintptr
	select {
	case entry = <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("the main thread never entered user mode")
	}

	if len(wrote) != 1 || wrote[0] != 0x80000000 {
		t.Fatalf("expected one segment write at 0x80000000, got %v", wrote)
	}
	if entry != 0x80000000 {
		t.Fatalf("expected entry 0x80000000, got %#x", entry)
	}

	Exit(pid)
}
