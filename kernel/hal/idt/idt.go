// Package idt builds the x86 Interrupt Descriptor Table: one trampoline per
// exception (0..31), one per hardware interrupt (32..47), and a trap gate
// for the kernel-call vector (§4.1 idt_init).
package idt

import (
	"encoding/binary"
	"unsafe"
)

const (
	// Length is the number of IDT slots this port installs: 32 exception
	// lines, 16 hardware interrupt lines, and the kcall trap gate.
	Length = 49

	// KcallVector is the vector number reserved for the kernel-call trap
	// gate, placed right after the hardware interrupt range.
	KcallVector = 48

	hwintBase = 32

	flagsRing0 = 0x8e // present, DPL0, 64-bit interrupt gate
	flagsRing3 = 0xee // present, DPL3, 64-bit interrupt gate (kcall trap)
)

// entry is the on-the-wire 64-bit IDT gate descriptor layout (16 bytes).
type entry struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

// dtrSize is the wire size of an IDTR/GDTR descriptor in 64-bit mode: a
// 16-bit limit followed by a 64-bit base, packed with no padding, hence the
// byte-buffer construction in Init rather than a plain Go struct (whose
// alignment would insert six bytes between the two fields).
const dtrSize = 10

var table [Length]entry

func setGate(n int, handler uintptr, csSelector uint16, flags uint8) {
	table[n] = entry{
		offsetLow:  uint16(handler & 0xffff),
		selector:   csSelector,
		ist:        0,
		typeAttr:   flags,
		offsetMid:  uint16((handler >> 16) & 0xffff),
		offsetHigh: uint32(handler >> 32),
	}
}

// Trampolines supplies the asm entry-point addresses idt_init wires into the
// table. The actual trampolines live in hand-written assembly that saves
// registers and calls back into kernel/irq; this package only owns the
// descriptor bytes, mirroring how the original idt_init receives them as
// extern function pointers.
type Trampolines struct {
	Exceptions [32]uintptr
	HWInts     [16]uintptr
	Kcall      uintptr
}

// Init installs every trampoline in t using csSelector as the target code
// segment, then loads the table with LIDT.
func Init(csSelector uint16, t Trampolines) {
	for i, addr := range t.Exceptions {
		if addr != 0 {
			setGate(i, addr, csSelector, flagsRing0)
		}
	}
	for i, addr := range t.HWInts {
		if addr != 0 {
			setGate(hwintBase+i, addr, csSelector, flagsRing0)
		}
	}
	if t.Kcall != 0 {
		setGate(KcallVector, t.Kcall, csSelector, flagsRing3)
	}

	var dtr [dtrSize]byte
	binary.LittleEndian.PutUint16(dtr[0:2], uint16(unsafe.Sizeof(table))-1)
	binary.LittleEndian.PutUint64(dtr[2:10], uint64(uintptr(unsafe.Pointer(&table[0]))))
	load(uintptr(unsafe.Pointer(&dtr[0])))
}
