// services/hal/internal/platform/pins_host.go
//go:build !rp2040 && !rp2350

package platform

import (
	"errors"
	"sync"

	"tinygo.org/x/drivers"

	"rotary-go/services/hal/internal/core"
)

// Same numbering as the RP2 build so configs carry over.
const (
	GPIOMin = 0
	GPIOMax = 28
)

// ----------------------------- GPIO (host) -----------------------------------

// SimPin implements core.IRQPin. SetLevel runs the registered handler
// synchronously, the way an edge interrupt would.
type SimPin struct {
	mu      sync.RWMutex
	number  int
	level   bool
	pull    core.Pull
	irqEdge core.Edge
	irqFunc func()
	noIRQ   bool
}

var _ core.IRQPin = (*SimPin)(nil)

func (p *SimPin) ConfigureInput(pull core.Pull) error {
	p.mu.Lock()
	p.pull = pull
	// An undriven input follows its pull.
	switch pull {
	case core.PullUp:
		p.level = true
	case core.PullDown:
		p.level = false
	}
	p.mu.Unlock()
	return nil
}

// SetLevel drives the line as an external signal would.
func (p *SimPin) SetLevel(level bool) {
	p.mu.Lock()
	old := p.level
	p.level = level
	fire := irqWanted(p.irqEdge, edgeFrom(old, level))
	irq := p.irqFunc
	p.mu.Unlock()
	if fire && irq != nil {
		irq() // outside the lock: the handler reads the pin
	}
}

func (p *SimPin) Get() bool {
	p.mu.RLock()
	v := p.level
	p.mu.RUnlock()
	return v
}

func (p *SimPin) IsHigh() (bool, error) { return p.Get(), nil }

func (p *SimPin) Number() int { return p.number }

func (p *SimPin) Pull() core.Pull {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pull
}

var errNoIRQ = errors.New("irq unsupported")

func (p *SimPin) SetIRQ(edge core.Edge, handler func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.noIRQ {
		return errNoIRQ
	}
	p.irqEdge = edge
	p.irqFunc = handler
	return nil
}

func (p *SimPin) ClearIRQ() error {
	p.mu.Lock()
	p.irqEdge = core.EdgeNone
	p.irqFunc = nil
	p.mu.Unlock()
	return nil
}

// HasIRQ reports whether a handler is attached.
func (p *SimPin) HasIRQ() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.irqFunc != nil
}

func edgeFrom(old, new bool) core.Edge {
	switch {
	case !old && new:
		return core.EdgeRising
	case old && !new:
		return core.EdgeFalling
	default:
		return core.EdgeNone
	}
}

func irqWanted(cfg, seen core.Edge) bool {
	if seen == core.EdgeNone {
		return false
	}
	return cfg == core.EdgeBoth || cfg == seen
}

// ----------------------------- I²C (host) ------------------------------------

// SimExpander emulates a PCF8574 on a host I²C bus: reads return the port
// (input levels ANDed with the output latch), writes set the latch.
type SimExpander struct {
	mu    sync.Mutex
	Addr  uint16
	latch uint8
	input uint8
	fail  error
}

// NewSimExpander returns an expander at addr with all inputs high.
func NewSimExpander(addr uint16) *SimExpander {
	return &SimExpander{Addr: addr, latch: 0xFF, input: 0xFF}
}

// SetInput drives expander pin n externally.
func (e *SimExpander) SetInput(n uint8, high bool) {
	e.mu.Lock()
	if high {
		e.input |= 1 << n
	} else {
		e.input &^= 1 << n
	}
	e.mu.Unlock()
}

// Fail makes every transaction return err until cleared with nil.
func (e *SimExpander) Fail(err error) {
	e.mu.Lock()
	e.fail = err
	e.mu.Unlock()
}

func (e *SimExpander) Latch() uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latch
}

var errNACK = errors.New("i2c: nack")

// SimI2C is a host bus that routes transactions to attached expanders.
type SimI2C struct {
	mu   sync.Mutex
	devs map[uint16]*SimExpander
}

var _ drivers.I2C = (*SimI2C)(nil)

func (b *SimI2C) Attach(e *SimExpander) {
	b.mu.Lock()
	if b.devs == nil {
		b.devs = make(map[uint16]*SimExpander)
	}
	b.devs[e.Addr] = e
	b.mu.Unlock()
}

func (b *SimI2C) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	e := b.devs[addr]
	b.mu.Unlock()
	if e == nil {
		return errNACK
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	if len(w) > 0 {
		e.latch = w[len(w)-1]
	}
	for i := range r {
		r[i] = e.input & e.latch
	}
	return nil
}

// ----------------------------- Board (host) ----------------------------------

// SimBoard provides stable SimPins by number and buses "i2c0"/"i2c1".
type SimBoard struct {
	mu   sync.Mutex
	pins map[int]*SimPin
	i2c  map[string]*SimI2C
}

func NewSimBoard() *SimBoard {
	return &SimBoard{
		pins: make(map[int]*SimPin),
		i2c:  map[string]*SimI2C{"i2c0": {}, "i2c1": {}},
	}
}

// ByNumber satisfies core.PinFactory.
func (b *SimBoard) ByNumber(n int) (core.GPIOHandle, bool) {
	p, ok := b.Pin(n)
	if !ok {
		return nil, false
	}
	return p, true
}

// Pin exposes the underlying *SimPin (e.g. to drive edges).
func (b *SimBoard) Pin(n int) (*SimPin, bool) {
	if n < GPIOMin || n > GPIOMax {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pins[n]
	if !ok {
		p = &SimPin{number: n}
		b.pins[n] = p
	}
	return p, true
}

// DisableIRQ makes pin n refuse SetIRQ, like a line without edge detection.
func (b *SimBoard) DisableIRQ(n int) {
	if p, ok := b.Pin(n); ok {
		p.mu.Lock()
		p.noIRQ = true
		p.mu.Unlock()
	}
}

// ByID satisfies core.I2CFactory.
func (b *SimBoard) ByID(id string) (drivers.I2C, bool) {
	bus, ok := b.Bus(id)
	if !ok {
		return nil, false
	}
	return bus, true
}

func (b *SimBoard) Bus(id string) (*SimI2C, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bus, ok := b.i2c[id]
	return bus, ok
}

var defaultBoard = NewSimBoard()

// DefaultBoard is the board behind the host default factories.
func DefaultBoard() *SimBoard { return defaultBoard }

func DefaultPinFactory() core.PinFactory { return defaultBoard }
func DefaultI2CFactory() core.I2CFactory { return defaultBoard }
