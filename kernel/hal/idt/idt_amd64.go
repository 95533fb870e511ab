package idt

// load executes LIDT against the descriptor pointed to by dtrAddr.
func load(dtrAddr uintptr)
