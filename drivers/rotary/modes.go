package rotary

import "errors"

// LatchMode selects the raw states at which the logical position is updated.
type LatchMode uint8

const (
	// Four3 has 4 steps per detent and latches at raw state 3. Compatible
	// with older single-latch wiring; this is the zero value.
	Four3 LatchMode = iota
	// Four0 has 4 steps per detent and latches at raw state 0 (reverse wiring).
	Four0
	// Two03 has 2 steps per detent and latches at raw states 0 and 3.
	Two03
)

// ErrInvalidMode is returned by ParseLatchMode for unknown names.
var ErrInvalidMode = errors.New("rotary: invalid latch mode")

func (m LatchMode) String() string {
	switch m {
	case Four3:
		return "four3"
	case Four0:
		return "four0"
	case Two03:
		return "two03"
	default:
		return "unknown"
	}
}

// ParseLatchMode maps a configuration name to a LatchMode. An empty name
// selects Four3.
func ParseLatchMode(s string) (LatchMode, error) {
	switch s {
	case "", "four3", "FOUR3":
		return Four3, nil
	case "four0", "FOUR0":
		return Four0, nil
	case "two03", "TWO03":
		return Two03, nil
	}
	return Four3, ErrInvalidMode
}

// shift is log2 of the fine steps per logical step.
func (m LatchMode) shift() uint {
	if m == Two03 {
		return 1
	}
	return 2
}

// Direction of the last position change.
type Direction int8

const (
	CounterClockwise Direction = -1
	NoRotation       Direction = 0
	Clockwise        Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Clockwise:
		return "cw"
	case CounterClockwise:
		return "ccw"
	default:
		return "none"
	}
}
