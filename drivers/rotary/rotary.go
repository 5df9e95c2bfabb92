// Package rotary decodes the 2-bit gray code of a quadrature rotary encoder.
//
// The two signal lines (clk = A, dt = B) form a raw state A | B<<1. Every
// valid single-step transition moves an internal fine counter by one; the
// externally visible position is latched only when the raw state reaches the
// latch point(s) of the configured LatchMode, which normally coincide with the
// mechanical detents:
//
//	cw : 0 -> 2 -> 3 -> 1 -> 0   (+1 per step)
//	ccw: 0 -> 1 -> 3 -> 2 -> 0   (-1 per step)
//
// Call CheckState as often as possible, either from a polling loop or from the
// edge interrupts of both lines. The decoder itself does no locking; use Slot
// when it is shared with interrupt handlers.
package rotary

// Pin is the only capability the decoder needs from a signal line.
// A read error is treated as a low level.
type Pin interface {
	IsHigh() (bool, error)
}

// Raw states used as latch points.
const (
	latch0 = 0
	latch3 = 3
)

// transitions is indexed by new | old<<2. Entries that are not a single valid
// gray-code step (including both bits flipping at once) are 0.
var transitions = [16]int8{
	0, -1, 1, 0,
	1, 0, 0, -1,
	-1, 0, 0, 1,
	0, 1, -1, 0,
}

// Decoder tracks the position of one encoder. The zero value is not usable;
// construct with New.
type Decoder struct {
	clk, dt Pin
	mode    LatchMode

	state uint8 // last raw state
	fine  int   // fine counter, 4x or 2x the logical position
	pos   int   // logical position
	prev  int   // position snapshot for Direction
}

// New creates a decoder over the given pins and samples their current state
// so the first transition is measured against the real resting position.
// Pins should already be configured as inputs (usually with pull-ups).
func New(clk, dt Pin, mode LatchMode) Decoder {
	d := Decoder{clk: clk, dt: dt, mode: mode}
	d.state = d.read()
	return d
}

// CheckState samples both pins and updates the position. Calls with an
// unchanged raw state are no-ops, so duplicate interrupts are harmless.
func (d *Decoder) CheckState() {
	s := d.read()
	if s == d.state {
		return
	}
	d.fine += int(transitions[s|d.state<<2])
	d.state = s

	switch d.mode {
	case Four0:
		if s == latch0 {
			d.pos = d.fine >> 2
		}
	case Two03:
		if s == latch0 || s == latch3 {
			d.pos = d.fine >> 1
		}
	default:
		if s == latch3 {
			d.pos = d.fine >> 2
		}
	}
}

// Position returns the current logical position.
func (d *Decoder) Position() int { return d.pos }

// SetPosition overrides the logical position. The fine counter keeps its
// sub-latch phase so the next transitions continue from the same point.
func (d *Decoder) SetPosition(p int) {
	shift := d.mode.shift()
	mask := 1<<shift - 1
	d.fine = p<<shift | d.fine&mask
	d.pos = p
	d.prev = p
}

// Direction reports the direction of the last position change and consumes
// it: a second call without new movement returns NoRotation.
func (d *Decoder) Direction() Direction {
	dir := NoRotation
	switch {
	case d.prev > d.pos:
		dir = CounterClockwise
	case d.prev < d.pos:
		dir = Clockwise
	}
	d.prev = d.pos
	return dir
}

// Pins returns the pins owned by the decoder, e.g. to clear interrupt-pending
// flags on the concrete pin type.
func (d *Decoder) Pins() (clk, dt Pin) { return d.clk, d.dt }

// Mode returns the latch mode chosen at construction.
func (d *Decoder) Mode() LatchMode { return d.mode }

// State returns the last sampled raw state (A in bit 0, B in bit 1).
func (d *Decoder) State() uint8 { return d.state }

func (d *Decoder) read() uint8 {
	return level(d.clk) | level(d.dt)<<1
}

func level(p Pin) uint8 {
	if p == nil {
		return 0
	}
	if high, err := p.IsHigh(); err == nil && high {
		return 1
	}
	return 0
}
