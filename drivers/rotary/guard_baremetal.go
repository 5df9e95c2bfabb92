//go:build baremetal

package rotary

import "runtime/interrupt"

// guard masks all interrupts while held. Single-core only; not reentrant.
type guard struct {
	st interrupt.State
}

func (g *guard) lock()   { st := interrupt.Disable(); g.st = st }
func (g *guard) unlock() { interrupt.Restore(g.st) }
