package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw YAML bytes for that device
// -----------------------------------------------------------------------------

// Knob on GP2 (clk) / GP3 (dt), detent at both lines high.
const cfgPico = `
hal:
  devices:
    - id: knob
      type: rotary_encoder
      params:
        pin_a: 2
        pin_b: 3
        pull: up
        mode: four3
`

// Panel knob on GP2/GP3 plus a second encoder on lines 0/1 of a PCF8574 on
// i2c0 (GP4 SDA, GP5 SCL).
const cfgPicoPanel = `
hal:
  devices:
    - id: knob
      type: rotary_encoder
      params: {pin_a: 2, pin_b: 3, pull: up}
    - id: volume
      type: pcf8574_encoder
      params: {bus: i2c0, addr: 0x20, pin_a: 0, pin_b: 1, mode: two03, poll_ms: 2}
`

var embeddedConfigs = map[string][]byte{
	"pico":       []byte(cfgPico),
	"pico-panel": []byte(cfgPicoPanel),
}
