package irq

import (
	"bytes"
	"kmicro/kernel/kfmt"
	"testing"
)

func resetInterruptState() {
	for i := range interruptTable {
		interruptTable[i] = nil
		interruptCounter[i] = 0
	}
	timerHandler = nil
	tickCount = 0
	ackFn = func(InterruptNumber) {}
	pendingFn = func() (InterruptNumber, bool) { return 0, false }
}

func TestInterruptRegisterBusy(t *testing.T) {
	defer resetInterruptState()

	if err := InterruptRegister(TimerIRQ, func(InterruptNumber) {}); err != errHandlerBusy {
		t.Fatalf("expected errHandlerBusy for the timer slot, got %v", err)
	}

	if err := InterruptRegister(InterruptCount, func(InterruptNumber) {}); err != errInvalidInterrupt {
		t.Fatalf("expected errInvalidInterrupt for out-of-range line, got %v", err)
	}

	if err := InterruptRegister(1, func(InterruptNumber) {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := InterruptRegister(1, func(InterruptNumber) {}); err != errHandlerBusy {
		t.Fatalf("expected errHandlerBusy on double registration, got %v", err)
	}

	if err := InterruptUnregister(1); err != nil {
		t.Fatalf("unexpected error unregistering: %v", err)
	}
	if err := InterruptUnregister(1); err != errNoHandler {
		t.Fatalf("expected errNoHandler after unregister, got %v", err)
	}
}

func TestDoInterruptTimerTicks(t *testing.T) {
	defer resetInterruptState()

	var ticks int
	RegisterTimerHandler(func() { ticks++ })

	DoInterrupt(TimerIRQ)
	DoInterrupt(TimerIRQ)

	if ticks != 2 || TickCount() != 2 {
		t.Fatalf("expected 2 ticks, got ticks=%d tickCount=%d", ticks, TickCount())
	}
}

func TestDoInterruptDrainsPending(t *testing.T) {
	defer resetInterruptState()

	var order []InterruptNumber
	InterruptRegister(2, func(n InterruptNumber) { order = append(order, n) })
	InterruptRegister(3, func(n InterruptNumber) { order = append(order, n) })

	remaining := []InterruptNumber{3}
	SetPendingFn(func() (InterruptNumber, bool) {
		if len(remaining) == 0 {
			return 0, false
		}
		n := remaining[0]
		remaining = remaining[1:]
		return n, true
	})

	DoInterrupt(2)

	if len(order) != 2 || order[0] != 2 || order[1] != 3 {
		t.Fatalf("expected to drain [2 3], got %v", order)
	}
}

func TestDoInterruptSpuriousThreshold(t *testing.T) {
	defer resetInterruptState()

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	for i := 0; i < SpuriousThreshold+1; i++ {
		DoInterrupt(5)
	}

	if buf.Len() == 0 {
		t.Fatal("expected a spurious-interrupt warning to be logged")
	}
}

func TestAckFnIsCalled(t *testing.T) {
	defer resetInterruptState()

	var acked InterruptNumber = 255
	SetAckFn(func(n InterruptNumber) { acked = n })

	DoInterrupt(4)

	if acked != 4 {
		t.Fatalf("expected ackFn to be called with line 4, got %d", acked)
	}
}
