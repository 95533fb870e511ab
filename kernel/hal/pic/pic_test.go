package pic

import "testing"

func resetPIC() {
	currLevel = Level5
	currMask = levelMasks[Level5]
	outbFn = func(uint16, uint8) {}
	inbFn = func(uint16) uint8 { return 0 }
	iowaitFn = func() {}
}

func TestInitRemapsOffsetsAndMasksAll(t *testing.T) {
	defer resetPIC()

	var writes []struct {
		port uint16
		val  uint8
	}
	outbFn = func(p uint16, v uint8) {
		writes = append(writes, struct {
			port uint16
			val  uint8
		}{p, v})
	}

	Init(0x20)

	if LevelGet() != Level5 {
		t.Fatalf("expected Init to leave level at Level5, got %v", LevelGet())
	}
	if len(writes) == 0 {
		t.Fatal("expected Init to write to the PIC ports")
	}
	if writes[2].port != dataMaster || writes[2].val != 0x20 {
		t.Fatalf("expected master vector offset to be written, got %+v", writes[2])
	}
}

func TestMaskUnmaskRejectsCascadeAndOutOfRange(t *testing.T) {
	defer resetPIC()

	if err := Mask(CascadeIRQ); err != errInvalidIRQ {
		t.Fatalf("expected errInvalidIRQ for the cascade line, got %v", err)
	}
	if err := Mask(NumIRQs); err != errInvalidIRQ {
		t.Fatalf("expected errInvalidIRQ for out-of-range IRQ, got %v", err)
	}
	if err := Unmask(-1); err != errInvalidIRQ {
		t.Fatalf("expected errInvalidIRQ for negative IRQ, got %v", err)
	}
}

func TestMaskSetsBitUnmaskClearsIt(t *testing.T) {
	defer resetPIC()
	LevelSet(Level0)

	if err := Mask(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if currMask&(1<<1) == 0 {
		t.Fatal("expected bit 1 to be set after Mask(1)")
	}

	if err := Unmask(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if currMask&(1<<1) != 0 {
		t.Fatal("expected bit 1 to be cleared after Unmask(1)")
	}
}

func TestAckSendsEOIToSlaveForHighIRQs(t *testing.T) {
	defer resetPIC()

	var ports []uint16
	outbFn = func(p uint16, v uint8) { ports = append(ports, p) }

	if err := Ack(10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ports) != 2 || ports[0] != ctrlSlave || ports[1] != ctrlMaster {
		t.Fatalf("expected EOI to slave then master, got %v", ports)
	}

	ports = nil
	if err := Ack(3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ports) != 1 || ports[0] != ctrlMaster {
		t.Fatalf("expected EOI to master only, got %v", ports)
	}
}

func TestLevelSetRejectsOutOfRange(t *testing.T) {
	defer resetPIC()

	if _, err := LevelSet(Level(99)); err != errInvalidLevel {
		t.Fatalf("expected errInvalidLevel, got %v", err)
	}
}

func TestLevelSetReturnsOldLevel(t *testing.T) {
	defer resetPIC()

	LevelSet(Level4)
	old, err := LevelSet(Level2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if old != Level4 {
		t.Fatalf("expected old level Level4, got %v", old)
	}
	if LevelGet() != Level2 {
		t.Fatalf("expected current level Level2, got %v", LevelGet())
	}
}
