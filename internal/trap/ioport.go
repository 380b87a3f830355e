package trap

// inb/outb are implemented in ioport_amd64.s; like every other
// raw-instruction primitive in this package, port I/O from a hosted
// `go test` process faults rather than doing anything meaningful.
//
//go:noescape
func inb(port uint16) uint8

//go:noescape
func outb(port uint16, val uint8)

// InB/OutB are cmd/kpio's hooks for the legacy-device ports the
// keyboard and COM1 IRQ handlers read from (spec §12.5's keyboard/
// serial console path): exported so main.go can read the scancode/
// serial byte a Keyboard/COM1 IRQ signaled without main.go needing
// its own asm.
func InB(port uint16) uint8       { return inb(port) }
func OutB(port uint16, val uint8) { outb(port, val) }
