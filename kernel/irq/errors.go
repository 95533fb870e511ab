package irq

import "kmicro/kernel"

var (
	errInvalidException = &kernel.Error{Module: "irq", Message: "invalid exception number"}
	errNoCustomHandler   = &kernel.Error{Module: "irq", Message: "exception line already runs the default handler"}

	errInvalidInterrupt = &kernel.Error{Module: "irq", Message: "invalid interrupt number"}
	errHandlerBusy       = &kernel.Error{Module: "irq", Message: "a handler is already installed for this interrupt"}
	errNoHandler         = &kernel.Error{Module: "irq", Message: "no handler installed for this interrupt"}
)
