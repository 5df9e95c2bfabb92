//go:build linux && !baremetal

// Package sysfsgpio decodes a rotary encoder wired to the GPIO header of a
// Linux board (Raspberry Pi and friends) through /sys/class/gpio.
//
// Each line is watched for both edges by its own goroutine, which plays the
// part of the interrupt handler on a microcontroller: it caches the new level
// and samples the shared decoder. The decoder reads the cached levels, so a
// sample never blocks on the kernel.
package sysfsgpio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	gpio "github.com/aamcrae/gpio"

	"rotary-go/drivers/rotary"
)

// Line is one exported input pin.
type Line struct {
	g     *gpio.Gpio
	num   int
	level atomic.Bool
}

// OpenLine exports pin n as an input and reads its resting level.
func OpenLine(n int) (*Line, error) {
	g, err := gpio.Pin(n)
	if err != nil {
		return nil, fmt.Errorf("gpio%d: %w", n, err)
	}
	v, err := g.Get()
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("gpio%d: %w", n, err)
	}
	l := &Line{g: g, num: n}
	l.level.Store(v == 1)
	return l, nil
}

// IsHigh returns the level seen at the last edge.
func (l *Line) IsHigh() (bool, error) { return l.level.Load(), nil }

// Number returns the kernel GPIO number.
func (l *Line) Number() int { return l.num }

// Watch enables both-edge detection and calls fn after every edge, once the
// new level is cached. It blocks until a read fails.
func (l *Line) Watch(fn func()) error {
	if err := l.g.Edge(gpio.BOTH); err != nil {
		return fmt.Errorf("gpio%d: edge: %w", l.num, err)
	}
	for {
		v, err := l.g.Get()
		if err != nil {
			return fmt.Errorf("gpio%d: %w", l.num, err)
		}
		l.level.Store(v == 1)
		fn()
	}
}

// Close unexports the pin.
func (l *Line) Close() { l.g.Close() }

// line is what Encoder needs from a pin; *Line implements it.
type line interface {
	rotary.Pin
	Watch(fn func()) error
	Close()
}

// Encoder couples two watched lines to one decoder. The watchers start with
// the first Run and live until a line fails or Close.
type Encoder struct {
	clk, dt line
	slot    rotary.Slot
	notify  chan struct{}

	watch  sync.Once
	fail   sync.Once
	failed chan struct{} // closed when the first watcher exits
	err    error
}

// Open exports both pins and installs a decoder in the given mode.
func Open(clk, dt int, mode rotary.LatchMode) (*Encoder, error) {
	a, err := OpenLine(clk)
	if err != nil {
		return nil, err
	}
	b, err := OpenLine(dt)
	if err != nil {
		a.Close()
		return nil, err
	}
	return newEncoder(a, b, mode), nil
}

func newEncoder(clk, dt line, mode rotary.LatchMode) *Encoder {
	e := &Encoder{clk: clk, dt: dt, notify: make(chan struct{}, 1), failed: make(chan struct{})}
	e.slot.Install(rotary.New(clk, dt, mode))
	return e
}

// SetPosition overrides the logical position. A running Run reports it.
func (e *Encoder) SetPosition(p int) {
	e.slot.SetPosition(p)
	e.wake()
}

// Position returns the logical position.
func (e *Encoder) Position() int {
	p, _ := e.slot.Position()
	return p
}

// Run calls fn for every position change until ctx is cancelled or a line
// fails. fn runs on the caller's goroutine. Run may be called again after
// cancellation; a line failure is reported by every later call.
func (e *Encoder) Run(ctx context.Context, fn func(pos int, dir rotary.Direction)) error {
	e.watch.Do(e.startWatchers)
	last, _ := e.slot.Position()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.failed:
			return e.err
		case <-e.notify:
			pos, dir, _ := e.slot.Current()
			if pos == last {
				continue
			}
			last = pos
			fn(pos, dir)
		}
	}
}

func (e *Encoder) startWatchers() {
	for _, l := range []line{e.clk, e.dt} {
		go func(l line) {
			err := l.Watch(e.edge)
			e.fail.Do(func() {
				e.err = err
				close(e.failed)
			})
		}(l)
	}
}

// edge is the watcher callback: sample, then wake Run without blocking.
func (e *Encoder) edge() {
	e.slot.Sample()
	e.wake()
}

func (e *Encoder) wake() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Close unexports both pins. Watchers exit on their next failed read.
func (e *Encoder) Close() {
	e.clk.Close()
	e.dt.Close()
}
