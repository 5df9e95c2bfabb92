package core

import (
	"time"

	"tinygo.org/x/drivers"

	"rotary-go/drivers/rotary"
)

// ---- GPIO handles ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// ParsePull maps the config strings "none", "up", "down". Empty is none.
func ParsePull(s string) (Pull, bool) {
	switch s {
	case "", "none":
		return PullNone, true
	case "up":
		return PullUp, true
	case "down":
		return PullDown, true
	}
	return PullNone, false
}

type Edge uint8

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

// GPIOHandle is an input line. It satisfies rotary.Pin so an encoder decoder
// can read it directly.
type GPIOHandle interface {
	Number() int
	ConfigureInput(pull Pull) error
	Get() bool
	IsHigh() (bool, error)
}

// IRQPin is a GPIOHandle that can call handler from interrupt context.
type IRQPin interface {
	GPIOHandle
	SetIRQ(edge Edge, handler func()) error
	ClearIRQ() error
}

// PinFactory maps logical pin numbers to handles.
type PinFactory interface {
	ByNumber(n int) (GPIOHandle, bool)
}

// I2CFactory injects configured I²C buses by id ("i2c0", "i2c1").
type I2CFactory interface {
	ByID(id string) (drivers.I2C, bool)
}

// ---- Encoder streams ----

// EncoderSpec describes one encoder for the registry. Both lines implementing
// IRQPin and Poll == 0 selects interrupt-driven sampling; otherwise the lines
// are sampled every Poll (DefaultPoll when zero).
type EncoderSpec struct {
	Clk, Dt rotary.Pin
	Mode    rotary.LatchMode
	Poll    time.Duration
	Buffer  int
}

const DefaultPoll = 2 * time.Millisecond

// EncoderEvent is published when the logical position changes or is set.
type EncoderEvent struct {
	DevID     string
	Position  int
	Direction rotary.Direction
	TSms      int64
}

type EncoderStream interface {
	Events() <-chan EncoderEvent
	Position() int
	// SetPosition overrides the position; a new event follows.
	SetPosition(p int)
	// Polled reports whether the lines are sampled on a ticker.
	Polled() bool
	Close()
}

// ---- Device → HAL telemetry (single shape) ----
// An Event with an empty EventTag is a value update published retained to
// .../value. A non-empty EventTag publishes to .../event/<tag> (not
// retained). Err, when non-empty, causes HAL to publish only
// .../status=degraded (retained).

type Event struct {
	Addr     CapAddr
	Payload  any
	TSms     int64
	Err      string
	EventTag string
}

// ---- Event emission (devices → HAL) ----

type EventEmitter interface {
	// Emit tries to enqueue an Event for HAL publication.
	// It must be non-blocking; false indicates a drop under pressure.
	Emit(ev Event) bool
}

// ---- HAL-injected resources ----

type Resources struct {
	Reg ResourceRegistry
	Pub EventEmitter // provided by HAL; devices use it to emit values/events
}

type ResourceRegistry interface {
	ClaimGPIO(devID string, pin int) (GPIOHandle, error)
	ReleaseGPIO(devID string, pin int)

	// I²C buses are shared; claims are counted but not exclusive.
	ClaimI2C(devID string, id string) (drivers.I2C, error)
	ReleaseI2C(devID string, id string)

	OpenEncoder(devID string, spec EncoderSpec) (EncoderStream, error)
}
