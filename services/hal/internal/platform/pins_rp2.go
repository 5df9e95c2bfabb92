// services/hal/internal/platform/pins_rp2.go
//go:build rp2040 || rp2350

package platform

import (
	"machine"

	"tinygo.org/x/drivers"

	"rotary-go/services/hal/internal/core"
)

// User GPIOs GP0..GP28.
const (
	GPIOMin = 0
	GPIOMax = 28
)

// DefaultPinFactory maps logical numbers directly to machine.Pin(n), the
// Pico/Pico 2 GP numbering.
func DefaultPinFactory() core.PinFactory { return rp2PinFactory{} }

// DefaultI2CFactory exposes i2c0 and i2c1 on the board-default pins. A bus is
// configured at 400 kHz the first time it is looked up.
func DefaultI2CFactory() core.I2CFactory {
	return &rp2I2CFactory{buses: map[string]*rp2Bus{
		"i2c0": {i2c: machine.I2C0, sda: machine.I2C0_SDA_PIN, scl: machine.I2C0_SCL_PIN},
		"i2c1": {i2c: machine.I2C1, sda: machine.I2C1_SDA_PIN, scl: machine.I2C1_SCL_PIN},
	}}
}

type rp2Bus struct {
	i2c      *machine.I2C
	sda, scl machine.Pin
	ready    bool
}

type rp2I2CFactory struct {
	buses map[string]*rp2Bus
}

func (f *rp2I2CFactory) ByID(id string) (drivers.I2C, bool) {
	b := f.buses[id]
	if b == nil {
		return nil, false
	}
	if !b.ready {
		err := b.i2c.Configure(machine.I2CConfig{Frequency: 400 * machine.KHz, SDA: b.sda, SCL: b.scl})
		if err != nil {
			println("[hal]", id, "configure failed:", err.Error())
			return nil, false
		}
		b.ready = true
	}
	return b.i2c, true
}

// ---- GPIO with edge IRQs ----

type rp2PinFactory struct{}

func (rp2PinFactory) ByNumber(n int) (core.GPIOHandle, bool) {
	if n < GPIOMin || n > GPIOMax {
		return nil, false
	}
	return &rp2Pin{p: machine.Pin(n), n: n}, true
}

type rp2Pin struct {
	p machine.Pin
	n int
}

var _ core.IRQPin = (*rp2Pin)(nil)

func (r *rp2Pin) ConfigureInput(pull core.Pull) error {
	r.p.Configure(machine.PinConfig{Mode: inputMode[pull]})
	return nil
}

func (r *rp2Pin) Get() bool { return r.p.Get() }

// IsHigh satisfies rotary.Pin. A GPIO read cannot fail.
func (r *rp2Pin) IsHigh() (bool, error) { return r.p.Get(), nil }

func (r *rp2Pin) Number() int { return r.n }

// SetIRQ maps EdgeBoth to PinToggle. handler runs in interrupt context.
func (r *rp2Pin) SetIRQ(edge core.Edge, handler func()) error {
	return r.p.SetInterrupt(toPinChange(edge), func(machine.Pin) { handler() })
}

func (r *rp2Pin) ClearIRQ() error {
	var zero machine.PinChange
	return r.p.SetInterrupt(zero, nil)
}

var inputMode = map[core.Pull]machine.PinMode{
	core.PullNone: machine.PinInput,
	core.PullUp:   machine.PinInputPullup,
	core.PullDown: machine.PinInputPulldown,
}

// toPinChange returns the zero PinChange (disabled) for EdgeNone.
func toPinChange(e core.Edge) machine.PinChange {
	switch e {
	case core.EdgeRising:
		return machine.PinRising
	case core.EdgeFalling:
		return machine.PinFalling
	case core.EdgeBoth:
		return machine.PinToggle
	}
	var zero machine.PinChange
	return zero
}
