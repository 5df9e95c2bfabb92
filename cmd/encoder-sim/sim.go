//go:build !rp2040 && !rp2350

package main

import (
	"fmt"
	"time"

	"rotary-go/drivers/pcf8574"
	"rotary-go/drivers/rotary"
	"rotary-go/services/config"
	"rotary-go/services/hal"
	"rotary-go/types"
)

// lines drives the two signal lines of one simulated encoder: 0 is clk (A),
// 1 is dt (B).
type lines interface {
	set(line int, high bool)
	rest() uint8
}

type gpioLines struct{ a, b *hal.SimPin }

func (g gpioLines) set(line int, high bool) {
	if line == 0 {
		g.a.SetLevel(high)
	} else {
		g.b.SetLevel(high)
	}
}

func (g gpioLines) rest() uint8 {
	var s uint8
	if g.a.Get() {
		s |= 1
	}
	if g.b.Get() {
		s |= 2
	}
	return s
}

type expanderLines struct {
	e    *hal.SimExpander
	a, b uint8
}

func (x expanderLines) set(line int, high bool) {
	if line == 0 {
		x.e.SetInput(x.a, high)
	} else {
		x.e.SetInput(x.b, high)
	}
}

// Sim expanders start with every input released high.
func (expanderLines) rest() uint8 { return 3 }

// cwOrder is the raw state sequence for clockwise rotation.
var cwOrder = [4]uint8{0, 2, 3, 1}

type knob struct {
	id, domain, name string
	mode             rotary.LatchMode
	l                lines
	state            uint8
	settle           time.Duration // pause after each edge so pollers see it
}

func (k *knob) latched() bool {
	switch k.mode {
	case rotary.Four0:
		return k.state == 0
	case rotary.Two03:
		return k.state == 0 || k.state == 3
	default:
		return k.state == 3
	}
}

// step moves the raw state by one gray-code step, changing one line.
func (k *knob) step(cw bool) {
	i := 0
	for i < len(cwOrder) && cwOrder[i] != k.state {
		i++
	}
	if cw {
		i = (i + 1) % 4
	} else {
		i = (i + 3) % 4
	}
	next := cwOrder[i]
	if (next^k.state)&1 != 0 {
		k.l.set(0, next&1 != 0)
	} else {
		k.l.set(1, next&2 != 0)
	}
	k.state = next
	if k.settle > 0 {
		time.Sleep(k.settle)
	}
}

// turn steps until the next latch point.
func (k *knob) turn(cw bool) {
	for {
		k.step(cw)
		if k.latched() {
			return
		}
	}
}

func pollSettle(ms uint16) time.Duration {
	if ms == 0 {
		return 0
	}
	return 3 * time.Duration(ms) * time.Millisecond
}

func paramsOf[T any](v any) (T, bool) {
	switch p := v.(type) {
	case T:
		return p, true
	case *T:
		if p != nil {
			return *p, true
		}
	}
	var zero T
	return zero, false
}

// buildKnobs wires a simulated encoder for every configured device. It must
// run before the HAL sees the configuration so that expanders answer.
func buildKnobs(cfg *config.Config, board *hal.SimBoard) ([]*knob, error) {
	type expKey struct {
		bus  string
		addr uint16
	}
	exps := make(map[expKey]*hal.SimExpander)

	var out []*knob
	for _, d := range cfg.HAL.Devices {
		k := &knob{id: d.ID, domain: "input", name: d.ID}
		var domain, name, mode string
		switch d.Type {
		case types.DeviceRotaryEncoder:
			p, ok := paramsOf[types.RotaryEncoderParams](d.Params)
			if !ok {
				return nil, fmt.Errorf("%s: bad params", d.ID)
			}
			a, okA := board.Pin(p.PinA)
			b, okB := board.Pin(p.PinB)
			if !okA || !okB {
				return nil, fmt.Errorf("%s: pins %d,%d not on board", d.ID, p.PinA, p.PinB)
			}
			k.l = gpioLines{a: a, b: b}
			k.settle = pollSettle(p.PollMs)
			domain, name, mode = p.Domain, p.Name, p.Mode
		case types.DevicePCF8574Encoder:
			p, ok := paramsOf[types.PCF8574EncoderParams](d.Params)
			if !ok {
				return nil, fmt.Errorf("%s: bad params", d.ID)
			}
			addr := p.Addr
			if addr == 0 {
				addr = pcf8574.Address
			}
			bus, ok := board.Bus(p.Bus)
			if !ok {
				return nil, fmt.Errorf("%s: no bus %q", d.ID, p.Bus)
			}
			e := exps[expKey{p.Bus, addr}]
			if e == nil {
				e = hal.NewSimExpander(addr)
				bus.Attach(e)
				exps[expKey{p.Bus, addr}] = e
			}
			k.l = expanderLines{e: e, a: uint8(p.PinA), b: uint8(p.PinB)}
			poll := p.PollMs
			if poll == 0 {
				poll = 2
			}
			k.settle = pollSettle(poll)
			domain, name, mode = p.Domain, p.Name, p.Mode
		default:
			return nil, fmt.Errorf("%s: cannot simulate %q", d.ID, d.Type)
		}
		if domain != "" {
			k.domain = domain
		}
		if name != "" {
			k.name = name
		}
		m, err := rotary.ParseLatchMode(mode)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.ID, err)
		}
		k.mode = m
		out = append(out, k)
	}
	return out, nil
}
