//go:build rp2040 || rp2350

// pico-encoder-poll decodes a knob on GP2/GP3 by polling both lines and
// prints every position change on the USB console.
package main

import (
	"machine"
	"os"
	"time"

	"rotary-go/drivers/rotary"
)

const pollEvery = 500 * time.Microsecond

type line machine.Pin

func (l line) IsHigh() (bool, error) { return machine.Pin(l).Get(), nil }

func main() {
	time.Sleep(1500 * time.Millisecond)

	clk, dt := machine.Pin(2), machine.Pin(3)
	clk.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	dt.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	enc := rotary.New(line(clk), line(dt), rotary.Four3)
	println("[encoder] polling every", int(pollEvery/time.Microsecond), "us")

	last := enc.Position()
	var buf [32]byte
	for {
		enc.CheckState()
		if p := enc.Position(); p != last {
			last = p
			_, _ = os.Stdout.Write(rotary.AppendStatus(buf[:0], p, enc.Direction()))
		}
		time.Sleep(pollEvery)
	}
}
