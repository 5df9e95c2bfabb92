package types

// ------------------------
// Encoder capability payloads
// ------------------------

// EncoderInfo is published as Info.Detail under .../info.
type EncoderInfo struct {
	PinA   int    `json:"pin_a"` // clk
	PinB   int    `json:"pin_b"` // dt
	Mode   string `json:"mode"`  // "four3", "four0", "two03"
	Polled bool   `json:"polled"`
	Bus    string `json:"bus,omitempty"` // expander encoders only
	Addr   uint16 `json:"addr,omitempty"`
}

// EncoderValue is published under .../value (retained).
// Direction is +1 clockwise, -1 counter-clockwise, 0 none.
type EncoderValue struct {
	Position  int  `json:"position"`
	Direction int8 `json:"direction"`
}

// EncoderSetPosition is the payload of control/set_position.
type EncoderSetPosition struct {
	Position int `json:"position"`
}
