//go:build rp2040 || rp2350

// pico-hal-main runs the HAL from the embedded "pico" configuration, prints
// encoder values on the console and mirrors them to a host over UART0.
package main

import (
	"context"
	"runtime"
	"time"

	"rotary-go/bus"
	"rotary-go/services/bridge"
	"rotary-go/services/config"
	"rotary-go/services/hal"
	"rotary-go/services/heartbeat"
	"rotary-go/types"
)

// device selects the embedded configuration.
const device = "pico"

func printTopicWith(prefix string, t bus.Topic) {
	print(prefix)
	print(" ")
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			print("/")
		}
		switch v := t.At(i).(type) {
		case string:
			print(v)
		case int:
			print(v)
		default:
			print("?")
		}
	}
	println()
}

func main() {
	time.Sleep(3 * time.Second)
	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, device)

	println("[main] bootstrapping bus …")
	b := bus.NewBus(8)
	halConn := b.NewConnection("hal")
	cfgConn := b.NewConnection("config")
	bridgeConn := b.NewConnection("bridge")
	uiConn := b.NewConnection("ui")

	println("[main] subscribing to encoder values …")
	values := uiConn.Subscribe(hal.EncoderValue("+", "+"))
	status := uiConn.Subscribe(hal.EncoderStatus("+", "+"))
	state := uiConn.Subscribe(hal.TopicHALState())
	go func() {
		for {
			select {
			case m := <-values.Channel():
				if v, ok := m.Payload.(types.EncoderValue); ok {
					printTopicWith("[monitor] <-", m.Topic)
					println("[monitor]   pos:", v.Position, "dir:", v.Direction)
				}
			case m := <-status.Channel():
				if s, ok := m.Payload.(types.CapabilityStatus); ok {
					printTopicWith("[monitor] <-", m.Topic)
					println("[monitor]   link:", string(s.Link), s.Error)
				}
			case m := <-state.Channel():
				if s, ok := m.Payload.(types.HALState); ok {
					println("[monitor] hal:", s.Level, s.Status)
				}
			}
		}
	}()

	println("[main] starting hal.Run …")
	go hal.Run(ctx, halConn)

	println("[main] publishing config/hal for", device, "…")
	config.NewConfigService().Start(ctx, cfgConn)

	println("[main] starting heartbeat …")
	_ = (&heartbeat.Service{Interval: 10 * time.Second}).Start(ctx, b.NewConnection("heartbeat"))

	println("[main] starting uart bridge …")
	bridge.UARTDial = dialUART
	go bridge.Start(ctx, bridgeConn)
	uiConn.Publish(uiConn.NewMessage(bus.T("config", "bridge"), bridge.Config{
		Transport: bridge.TransportConfig{
			Type: "uart",
			UART: &bridge.UARTConfig{Baud: 115200, TxPin: 0, RxPin: 1},
		},
	}, true))

	time.Sleep(250 * time.Millisecond)

	// Zero the knob once at boot.
	setPos := hal.EncoderControl("input", "knob", "set_position")
	rctx, cancel := context.WithTimeout(ctx, time.Second)
	if reply, err := uiConn.RequestWait(rctx, uiConn.NewMessage(setPos, types.EncoderSetPosition{Position: 0}, false)); err != nil {
		println("[main] set_position error:", err.Error())
	} else {
		printTopicWith("[main] set_position reply on", reply.Topic)
	}
	cancel()

	for {
		printMem()
		time.Sleep(5 * time.Second)
	}
}

// printMem prints a compact snapshot of TinyGo runtime memory stats.
// Uses builtin println to avoid fmt overhead/allocations.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	println(
		"[mem]",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"heapSys:", uint32(ms.HeapSys),
		"mallocs:", uint32(ms.Mallocs),
		"frees:", uint32(ms.Frees),
	)
}
