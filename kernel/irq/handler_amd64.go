package irq

import "kmicro/kernel/kfmt"

// ExceptionNum defines an exception number that can be passed to
// exception_register/exception_unregister (§4.2).
type ExceptionNum uint8

const (
	// DivByZero occurs when a division instruction has a zero divisor.
	DivByZero = ExceptionNum(0)

	// DoubleFault occurs when an exception is unhandled
	// or when an exception occurs while the CPU is
	// trying to call an exception handler.
	DoubleFault = ExceptionNum(8)

	// GPFException is raised when a general protection fault occurs.
	GPFException = ExceptionNum(13)

	// PageFaultException is raised when a PDT or
	// PDT-entry is not present or when a privilege
	// and/or RW protection check fails.
	PageFaultException = ExceptionNum(14)

	// ExceptionCount is the number of exception lines the dispatcher
	// maintains, matching the x86 reserved range 0..31.
	ExceptionCount = 32
)

// ExceptionHandler is a function that handles an exception that does not push
// an error code to the stack. If the handler returns, any modifications to the
// supplied Frame and/or Regs pointers will be propagated back to the location
// where the exception occurred.
type ExceptionHandler func(*Frame, *Regs)

// ExceptionHandlerWithCode is a function that handles an exception that pushes
// an error code to the stack. If the handler returns, any modifications to the
// supplied Frame and/or Regs pointers will be propagated back to the location
// where the exception occurred.
type ExceptionHandlerWithCode func(uint64, *Frame, *Regs)

var (
	exceptionTable  [ExceptionCount]ExceptionHandlerWithCode
	exceptionCustom [ExceptionCount]bool
)

// ExceptionRegister installs handler as the handler for exceptionNum,
// overwriting whatever was previously installed. It rejects an invalid
// exceptionNum and logs a warning when it displaces a handler other than the
// default one (§4.2 state machine: default -> custom).
func ExceptionRegister(exceptionNum ExceptionNum, handler ExceptionHandlerWithCode) error {
	if int(exceptionNum) >= ExceptionCount {
		return errInvalidException
	}

	if exceptionCustom[exceptionNum] {
		kfmt.Printf("[irq] overwriting existing handler for exception %d\n", uint8(exceptionNum))
	}

	exceptionTable[exceptionNum] = handler
	exceptionCustom[exceptionNum] = true
	return nil
}

// ExceptionUnregister removes the custom handler installed for exceptionNum,
// reverting the line to the default handler. It fails if the line is already
// running the default handler.
func ExceptionUnregister(exceptionNum ExceptionNum) error {
	if int(exceptionNum) >= ExceptionCount {
		return errInvalidException
	}

	if !exceptionCustom[exceptionNum] {
		return errNoCustomHandler
	}

	exceptionTable[exceptionNum] = nil
	exceptionCustom[exceptionNum] = false
	return nil
}

// DoException dispatches an exception with an associated error code to its
// registered handler, or to the default handler (dump and panic) if none is
// installed.
func DoException(exceptionNum ExceptionNum, code uint64, f *Frame, r *Regs) {
	if int(exceptionNum) < ExceptionCount {
		if h := exceptionTable[exceptionNum]; h != nil {
			h(code, f, r)
			return
		}
	}

	defaultExceptionHandler(exceptionNum, code, f, r)
}

func defaultExceptionHandler(exceptionNum ExceptionNum, code uint64, f *Frame, r *Regs) {
	kfmt.Printf("unhandled exception %d (code: %x)\n", uint8(exceptionNum), code)
	r.Print()
	f.Print()
	panic("unhandled exception")
}

// HandleException registers an exception handler (without an error code) for
// the given interrupt number. The trampoline installed by idt_init adapts the
// call so do_exception always sees an error code, using zero when the CPU
// does not push one natively.
func HandleException(exceptionNum ExceptionNum, handler ExceptionHandler) {
	ExceptionRegister(exceptionNum, func(_ uint64, f *Frame, r *Regs) {
		handler(f, r)
	})
}

// HandleExceptionWithCode registers an exception handler (with an error code)
// for the given interrupt number.
func HandleExceptionWithCode(exceptionNum ExceptionNum, handler ExceptionHandlerWithCode) {
	ExceptionRegister(exceptionNum, handler)
}
