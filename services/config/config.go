// Package config loads YAML device configuration and publishes the HAL part
// on the bus.
//
//	hal:
//	  devices:
//	    - id: knob
//	      type: rotary_encoder
//	      params: {pin_a: 2, pin_b: 3, pull: up, mode: four3}
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"rotary-go/drivers/rotary"
	"rotary-go/types"
)

// Config is one parsed document.
type Config struct {
	HAL types.HALConfig
}

var (
	ErrNoDevices   = errors.New("no devices")
	ErrMissingID   = errors.New("missing id")
	ErrDuplicateID = errors.New("duplicate id")
	ErrUnknownType = errors.New("unknown device type")
	ErrInvalidPin  = errors.New("invalid pin")
	ErrPinConflict = errors.New("pin already used")
	ErrInvalidPull = errors.New("invalid pull")
	ErrMissingBus  = errors.New("missing bus")
)

const (
	gpioMin, gpioMax = 0, 28
	expanderLines    = 8
)

type document struct {
	HAL struct {
		Devices []deviceNode `yaml:"devices"`
	} `yaml:"hal"`
}

type deviceNode struct {
	ID     string    `yaml:"id"`
	Type   string    `yaml:"type"`
	Params yaml.Node `yaml:"params"`
}

// Parse decodes a YAML document. Params are decoded into the typed struct for
// each device type. Unknown top-level keys are errors.
func Parse(b []byte) (*Config, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg := &Config{}
	for _, dn := range doc.HAL.Devices {
		params, err := decodeParams(dn.Type, &dn.Params)
		if err != nil {
			return nil, fmt.Errorf("config: device %q: %w", dn.ID, err)
		}
		cfg.HAL.Devices = append(cfg.HAL.Devices, types.HALDevice{ID: dn.ID, Type: dn.Type, Params: params})
	}
	return cfg, nil
}

func decodeParams(typ string, n *yaml.Node) (any, error) {
	switch typ {
	case types.DeviceRotaryEncoder:
		var p types.RotaryEncoderParams
		if err := decodeNode(n, &p); err != nil {
			return nil, err
		}
		return p, nil
	case types.DevicePCF8574Encoder:
		var p types.PCF8574EncoderParams
		if err := decodeNode(n, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}

func decodeNode[T any](n *yaml.Node, dst *T) error {
	if n.Kind == 0 {
		return nil // params omitted
	}
	if err := n.Decode(dst); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	return nil
}

// Load reads and parses path, then validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

type expanderLine struct {
	bus  string
	addr uint16
	line int
}

// Validate checks IDs, latch modes and pin ownership across devices.
func Validate(cfg *Config) error {
	if cfg == nil || len(cfg.HAL.Devices) == 0 {
		return fmt.Errorf("config: %w", ErrNoDevices)
	}
	ids := map[string]bool{}
	gpio := map[int]string{}
	lines := map[expanderLine]string{}

	claim := func(id string, n int) error {
		if n < gpioMin || n > gpioMax {
			return fmt.Errorf("%w: %d", ErrInvalidPin, n)
		}
		if owner, ok := gpio[n]; ok {
			return fmt.Errorf("%w: %d by %q", ErrPinConflict, n, owner)
		}
		gpio[n] = id
		return nil
	}
	claimLine := func(id string, k expanderLine) error {
		if k.line < 0 || k.line >= expanderLines {
			return fmt.Errorf("%w: line %d", ErrInvalidPin, k.line)
		}
		if owner, ok := lines[k]; ok {
			return fmt.Errorf("%w: %s/%#x line %d by %q", ErrPinConflict, k.bus, k.addr, k.line, owner)
		}
		lines[k] = id
		return nil
	}

	for _, d := range cfg.HAL.Devices {
		if d.ID == "" {
			return fmt.Errorf("config: %w", ErrMissingID)
		}
		if ids[d.ID] {
			return fmt.Errorf("config: %w: %q", ErrDuplicateID, d.ID)
		}
		ids[d.ID] = true

		var err error
		switch p := d.Params.(type) {
		case types.RotaryEncoderParams:
			err = validateMode(p.Mode)
			if err == nil {
				err = validatePull(p.Pull)
			}
			if err == nil {
				err = claim(d.ID, p.PinA)
			}
			if err == nil {
				err = claim(d.ID, p.PinB)
			}
		case types.PCF8574EncoderParams:
			if p.Bus == "" {
				err = ErrMissingBus
				break
			}
			addr := p.Addr
			if addr == 0 {
				addr = 0x20
			}
			err = validateMode(p.Mode)
			if err == nil {
				err = claimLine(d.ID, expanderLine{p.Bus, addr, p.PinA})
			}
			if err == nil {
				err = claimLine(d.ID, expanderLine{p.Bus, addr, p.PinB})
			}
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownType, d.Type)
		}
		if err != nil {
			return fmt.Errorf("config: device %q: %w", d.ID, err)
		}
	}
	return nil
}

func validateMode(s string) error {
	_, err := rotary.ParseLatchMode(s)
	return err
}

func validatePull(s string) error {
	switch s {
	case "", "none", "up", "down":
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidPull, s)
}
