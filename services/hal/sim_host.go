//go:build !rp2040 && !rp2350

package hal

import "rotary-go/services/hal/internal/platform"

// Simulated hardware for host builds and tests.
type (
	SimBoard    = platform.SimBoard
	SimPin      = platform.SimPin
	SimExpander = platform.SimExpander
)

func NewSimBoard() *SimBoard                  { return platform.NewSimBoard() }
func NewSimExpander(addr uint16) *SimExpander { return platform.NewSimExpander(addr) }
