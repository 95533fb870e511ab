package kernel

// Error describes a kernel error. All kernel errors are defined as global
// variables holding a pointer to an Error value. This requirement stems from
// the fact that the Go allocator is not available before goruntime has
// bootstrapped the heap, so errors.New cannot be used this early.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
