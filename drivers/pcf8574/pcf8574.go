// Package pcf8574 provides a driver for the PCF8574/PCF8574A 8-bit I²C I/O
// expander.
//
// The expander has quasi-bidirectional pins: writing 1 releases a pin to its
// weak pull-up so it can be read as an input. Configure does that for the
// input mask. Pin returns a handle whose IsHigh performs one port read.
// PinPair returns two handles sharing one read, so an encoder wired to the
// expander is sampled with a single transaction and both bits come from the
// same instant:
//
//	dev := pcf8574.New(machine.I2C0)
//	dev.Configure(pcf8574.Config{Address: 0x20})
//	clk, dt := dev.PinPair(0, 1)
//	enc := rotary.New(clk, dt, rotary.Four3)
//
// A failed transaction is returned as an error from IsHigh.
package pcf8574

import (
	"errors"

	"tinygo.org/x/drivers"
)

// Address is the default address with A0..A2 tied low (PCF8574A: 0x38).
const Address = 0x20

var (
	ErrInvalidPin = errors.New("pcf8574: invalid pin")
	ErrNoDevice   = errors.New("pcf8574: device not configured")
)

// Config is optional; zero fields take defaults.
type Config struct {
	// Address defaults to 0x20 if zero.
	Address uint16
	// Inputs is the mask of pins released high for reading. Zero means all pins.
	Inputs uint8
}

// Device wraps an I2C connection to a PCF8574.
type Device struct {
	bus     drivers.I2C
	Address uint16

	out uint8 // latched output register
	buf [1]byte

	last    uint8 // port value of the last Read
	lastErr error
}

// New creates a Device. The I2C bus must already be configured.
func New(bus drivers.I2C) Device {
	return Device{bus: bus, Address: Address, out: 0xFF}
}

// Configure applies cfg and writes the output latch so that input pins are
// released high.
func (d *Device) Configure(cfgs ...Config) error {
	var c Config
	if len(cfgs) > 0 {
		c = cfgs[0]
	}
	if c.Address != 0 {
		d.Address = c.Address
	}
	in := c.Inputs
	if in == 0 {
		in = 0xFF
	}
	d.out |= in
	return d.Write(d.out)
}

// Read returns the port levels.
func (d *Device) Read() (uint8, error) {
	if d.bus == nil {
		d.lastErr = ErrNoDevice
		return 0, d.lastErr
	}
	d.lastErr = d.bus.Tx(d.Address, nil, d.buf[:])
	if d.lastErr != nil {
		return 0, d.lastErr
	}
	d.last = d.buf[0]
	return d.last, nil
}

// Write sets the output latch.
func (d *Device) Write(v uint8) error {
	if d.bus == nil {
		return ErrNoDevice
	}
	d.buf[0] = v
	if err := d.bus.Tx(d.Address, d.buf[:], nil); err != nil {
		return err
	}
	d.out = v
	return nil
}

// Set drives pin n: true releases it high, false pulls it low.
func (d *Device) Set(n uint8, level bool) error {
	if n > 7 {
		return ErrInvalidPin
	}
	v := d.out &^ (1 << n)
	if level {
		v |= 1 << n
	}
	return d.Write(v)
}

// Pin returns an input handle for pin n (0..7).
func (d *Device) Pin(n uint8) Pin { return Pin{dev: d, n: n} }

// PinPair returns handles for pins a and b where only a reads the port; b
// reports the value a read. a must be read first, as rotary.Decoder does with
// its clk pin.
func (d *Device) PinPair(a, b uint8) (Pin, Pin) {
	return Pin{dev: d, n: a}, Pin{dev: d, n: b, cached: true}
}

// Pin is one expander line. It satisfies rotary.Pin.
type Pin struct {
	dev    *Device
	n      uint8
	cached bool // serve from the last Read
}

// IsHigh reports the level of this pin, reading the port unless the pin is
// the second of a PinPair.
func (p Pin) IsHigh() (bool, error) {
	if p.n > 7 {
		return false, ErrInvalidPin
	}
	if p.dev == nil {
		return false, ErrNoDevice
	}
	if p.cached {
		return p.dev.last&(1<<p.n) != 0, p.dev.lastErr
	}
	v, err := p.dev.Read()
	if err != nil {
		return false, err
	}
	return v&(1<<p.n) != 0, nil
}

// Number returns the expander pin index.
func (p Pin) Number() int { return int(p.n) }
