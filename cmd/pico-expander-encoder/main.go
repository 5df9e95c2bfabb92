//go:build rp2040 || rp2350

// pico-expander-encoder decodes an encoder wired to lines 0/1 of a PCF8574
// on I2C0 (GP4 SDA, GP5 SCL). The expander has no usable per-line interrupt
// here, so the port is polled.
package main

import (
	"machine"
	"os"
	"time"

	"rotary-go/drivers/pcf8574"
	"rotary-go/drivers/rotary"
)

const (
	addr      = pcf8574.Address
	pollEvery = 2 * time.Millisecond
)

func main() {
	time.Sleep(1500 * time.Millisecond)

	i2c := machine.I2C0
	if err := i2c.Configure(machine.I2CConfig{
		SDA:       machine.Pin(4),
		SCL:       machine.Pin(5),
		Frequency: 400 * machine.KHz,
	}); err != nil {
		println("[expander] i2c configure failed:", err.Error())
		return
	}

	dev := pcf8574.New(i2c)
	if err := dev.Configure(pcf8574.Config{Address: addr, Inputs: 0b11}); err != nil {
		println("[expander] no PCF8574 at", addr, ":", err.Error())
		return
	}
	clk, dt := dev.PinPair(0, 1)
	enc := rotary.New(clk, dt, rotary.Two03)
	println("[expander] ready")

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
