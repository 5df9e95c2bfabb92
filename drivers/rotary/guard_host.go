//go:build !baremetal

package rotary

import "sync"

// guard serialises access on hosted builds, where "interrupts" are goroutines.
type guard struct {
	mu sync.Mutex
}

func (g *guard) lock()   { g.mu.Lock() }
func (g *guard) unlock() { g.mu.Unlock() }
