//go:build rp2040 || rp2350

// pico-encoder decodes a knob on GP2 (clk) / GP3 (dt) from pin-change
// interrupts and writes "pos:<n>, dir:<d>" to UART0 whenever the position
// changes.
package main

import (
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"rotary-go/drivers/rotary"
)

const (
	pinClk = machine.Pin(2)
	pinDt  = machine.Pin(3)

	baud     = 115200
	loopIdle = time.Millisecond
)

// encoder is shared with both edge handlers.
var encoder rotary.Slot

func onEdge(machine.Pin) { encoder.Sample() }

// line adapts machine.Pin to rotary.Pin.
type line machine.Pin

func (l line) IsHigh() (bool, error) { return machine.Pin(l).Get(), nil }

func main() {
	time.Sleep(1500 * time.Millisecond)

	uart := uartx.UART0
	_ = uart.Configure(uartx.UARTConfig{
		BaudRate: baud,
		TX:       machine.Pin(0),
		RX:       machine.Pin(1),
	})

	for _, p := range []machine.Pin{pinClk, pinDt} {
		p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	}
	encoder.Install(rotary.New(line(pinClk), line(pinDt), rotary.Four3))

	for _, p := range []machine.Pin{pinClk, pinDt} {
		if err := p.SetInterrupt(machine.PinToggle, onEdge); err != nil {
			println("[encoder] irq attach failed:", err.Error())
			return
		}
	}
	println("[encoder] ready")

	last, _ := encoder.Position()
	var buf [32]byte
	for {
		pos, dir, _ := encoder.Current()
		if pos != last {
			last = pos
			_, _ = uart.Write(rotary.AppendStatus(buf[:0], pos, dir))
		}
		time.Sleep(loopIdle)
	}
}
