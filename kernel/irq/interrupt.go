package irq

import "kmicro/kernel/kfmt"

// InterruptNumber identifies one of the 16 legacy hardware interrupt lines
// (§4.3). Line TimerIRQ is reserved for the periodic tick and is registered
// through RegisterTimerHandler instead of InterruptRegister.
type InterruptNumber uint8

const (
	// InterruptCount is the number of hardware interrupt lines the
	// dispatcher serves, matching the legacy 8259 pair (IRQ0..IRQ15).
	InterruptCount = 16

	// TimerIRQ is the dedicated timer slot.
	TimerIRQ = InterruptNumber(0)

	// SpuriousThreshold is the number of consecutive default-handler
	// invocations on a line tolerated before a warning is logged.
	SpuriousThreshold = 16
)

// InterruptHandler services one hardware interrupt line. do_interrupt calls
// ack to notify the PIC/IOAPIC before it invokes the handler.
type InterruptHandler func(InterruptNumber)

// AckFn notifies the underlying interrupt controller that n has been
// serviced. It is supplied by the HAL port (pic.Ack or ioapic equivalent)
// and defaults to a no-op so the package is host-testable in isolation.
type AckFn func(InterruptNumber)

// PendingFn reports whether another interrupt is already pending on the
// controller, allowing do_interrupt to drain a burst without returning to the
// trampoline between each one. It defaults to always-false.
type PendingFn func() (InterruptNumber, bool)

var (
	interruptTable   [InterruptCount]InterruptHandler
	interruptCounter [InterruptCount]uint32

	timerHandler func()
	tickCount    uint64

	ackFn     AckFn = func(InterruptNumber) {}
	pendingFn PendingFn = func() (InterruptNumber, bool) { return 0, false }
)

// SetAckFn overrides the controller acknowledgement callback used by
// do_interrupt. Called once by the HAL port during pic_init/ioapic_init.
func SetAckFn(fn AckFn) {
	if fn == nil {
		fn = func(InterruptNumber) {}
	}
	ackFn = fn
}

// SetPendingFn overrides the controller pending-IRQ poll used by
// do_interrupt to drain bursts.
func SetPendingFn(fn PendingFn) {
	if fn == nil {
		fn = func() (InterruptNumber, bool) { return 0, false }
	}
	pendingFn = fn
}

// InterruptRegister installs handler for interrupt line n. It refuses to
// overwrite an already-installed handler (§4.3: -EBUSY) and rejects the
// timer slot, which is configured through RegisterTimerHandler.
func InterruptRegister(n InterruptNumber, handler InterruptHandler) error {
	if int(n) >= InterruptCount {
		return errInvalidInterrupt
	}
	if n == TimerIRQ {
		return errHandlerBusy
	}
	if interruptTable[n] != nil {
		return errHandlerBusy
	}

	interruptTable[n] = handler
	interruptCounter[n] = 0
	return nil
}

// InterruptUnregister removes the handler installed for interrupt line n.
func InterruptUnregister(n InterruptNumber) error {
	if int(n) >= InterruptCount {
		return errInvalidInterrupt
	}
	if interruptTable[n] == nil {
		return errNoHandler
	}

	interruptTable[n] = nil
	return nil
}

// RegisterTimerHandler installs fn as the handler invoked on every timer
// tick, after the tick counter has been incremented. A nil fn just ticks the
// counter.
func RegisterTimerHandler(fn func()) {
	timerHandler = fn
}

// TickCount returns the number of timer ticks observed so far.
func TickCount() uint64 {
	return tickCount
}

// DoInterrupt services interrupt line n: it acknowledges the controller,
// invokes the registered handler (ticking the timer first for TimerIRQ),
// falling back to a no-op default with spurious-IRQ accounting, then drains
// any further lines the controller reports as pending.
func DoInterrupt(n InterruptNumber) {
	for {
		ackFn(n)

		if n == TimerIRQ {
			tickCount++
			if timerHandler != nil {
				timerHandler()
			}
		} else if int(n) < InterruptCount && interruptTable[n] != nil {
			interruptCounter[n] = 0
			interruptTable[n](n)
		} else {
			defaultInterruptHandler(n)
		}

		next, ok := pendingFn()
		if !ok {
			return
		}
		n = next
	}
}

func defaultInterruptHandler(n InterruptNumber) {
	if int(n) >= InterruptCount {
		return
	}

	interruptCounter[n]++
	if interruptCounter[n] > SpuriousThreshold {
		kfmt.Printf("[irq] spurious interrupt on line %d (count: %d)\n", uint8(n), interruptCounter[n])
		interruptCounter[n] = 0
	}
}
