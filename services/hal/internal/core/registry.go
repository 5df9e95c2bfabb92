package core

import (
	"sync"

	"rotary-go/types"
)

var (
	regMu    sync.RWMutex
	builders = map[string]Builder{}
)

func RegisterBuilder(typ string, b Builder) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := builders[typ]; exists {
		panic("duplicate device builder: " + typ)
	}
	builders[typ] = b
}

// LookupBuilder returns the builder registered for typ.
func LookupBuilder(typ string) (Builder, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	b, ok := builders[typ]
	return b, ok
}

// Public HAL config type is in rotary-go/types
type HALConfig = types.HALConfig
type HALDevice = types.HALDevice
