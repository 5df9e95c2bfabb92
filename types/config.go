package types

// HAL configuration supplied on topic "config/hal".

type HALConfig struct {
	Devices []HALDevice `json:"devices" yaml:"devices"`
}

// HALDevice carries typed Params (e.g. RotaryEncoderParams) keyed by Type.
type HALDevice struct {
	ID     string `json:"id" yaml:"id"`
	Type   string `json:"type" yaml:"type"`
	Params any    `json:"params,omitempty" yaml:"-"`
}

// DeviceRotaryEncoder is the HAL device type for quadrature encoders.
const DeviceRotaryEncoder = "rotary_encoder"

// RotaryEncoderParams configures one encoder device.
type RotaryEncoderParams struct {
	PinA   int    `json:"pin_a" yaml:"pin_a"`                         // clk
	PinB   int    `json:"pin_b" yaml:"pin_b"`                         // dt
	Pull   string `json:"pull,omitempty" yaml:"pull,omitempty"`       // "none","up","down"
	Mode   string `json:"mode,omitempty" yaml:"mode,omitempty"`       // latch mode; default four3
	PollMs uint16 `json:"poll_ms,omitempty" yaml:"poll_ms,omitempty"` // >0 forces polling
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`   // default "input"
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`       // default device id
}

// DevicePCF8574Encoder is an encoder wired to two lines of a PCF8574 I²C
// expander. It is always polled.
const DevicePCF8574Encoder = "pcf8574_encoder"

type PCF8574EncoderParams struct {
	Bus    string `json:"bus" yaml:"bus"`                             // "i2c0", "i2c1"
	Addr   uint16 `json:"addr,omitempty" yaml:"addr,omitempty"`       // default 0x20
	PinA   int    `json:"pin_a" yaml:"pin_a"`                         // expander line 0..7
	PinB   int    `json:"pin_b" yaml:"pin_b"`                         // expander line 0..7
	Mode   string `json:"mode,omitempty" yaml:"mode,omitempty"`       // latch mode; default four3
	PollMs uint16 `json:"poll_ms,omitempty" yaml:"poll_ms,omitempty"` // default 2
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`   // default "input"
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`       // default device id
}
