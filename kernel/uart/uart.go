// Package uart implements the bare console contract named in §6: a UART at
// a given I/O port, 8N1 framing at a configured baud-rate divisor.
// uart_init(addr, baud_divisor) runs once; uart_write(ptr, len) polls the
// line-status register until the transmit FIFO is empty between bytes. The
// rest of a real UART driver (interrupt-driven RX, flow control) is outside
// this specification's scope (§1 Non-goals) and is left to the platform's
// console package.
package uart

import "kmicro/kernel/cpu"

const (
	regData        = 0
	regIERDivLatch = 1
	regFCR         = 2
	regLCR         = 3
	regLSR         = 5

	lcrDLAB  = 0x80
	lcr8N1   = 0x03
	fcrClear = 0xc7

	lsrTxEmpty = 0x20
)

var (
	outbFn = cpu.Outb
	inbFn  = cpu.Inb

	initialized bool
	basePort    uint16
)

// Init programs the UART at the given I/O port base for 8N1 framing at the
// rate implied by divisor (§6 uart_init(addr, baud_divisor)). It is
// idempotent; the second and later calls are no-ops.
func Init(base uint16, divisor uint16) {
	if initialized {
		return
	}

	outbFn(base+regIERDivLatch, 0x00)
	outbFn(base+regLCR, lcrDLAB)
	outbFn(base+regData, uint8(divisor&0xff))
	outbFn(base+regIERDivLatch, uint8(divisor>>8))
	outbFn(base+regLCR, lcr8N1)
	outbFn(base+regFCR, fcrClear)

	basePort = base
	initialized = true
}

// Write transmits buf one byte at a time, polling the line-status register
// until the transmit FIFO empties between bytes (§6 uart_write(ptr, len)).
func Write(buf []byte) int {
	if !initialized {
		return 0
	}

	for _, b := range buf {
		for inbFn(basePort+regLSR)&lsrTxEmpty == 0 {
		}
		outbFn(basePort+regData, b)
	}
	return len(buf)
}
