package rotary_encoder

import (
	"context"
	"testing"
	"time"

	"rotary-go/errcode"
	"rotary-go/services/hal/internal/core"
	"rotary-go/services/hal/internal/encirq"
	"rotary-go/services/hal/internal/platform"
	"rotary-go/services/hal/internal/provider"
	"rotary-go/types"
)

// chanEmitter records events like the HAL's queue would.
type chanEmitter chan core.Event

func (c chanEmitter) Emit(ev core.Event) bool {
	select {
	case c <- ev:
		return true
	default:
		return false
	}
}

type fixture struct {
	board *platform.SimBoard
	reg   *provider.Registry
	ev    chanEmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	w := encirq.New(8)
	w.Start(ctx)
	b := platform.NewSimBoard()
	return &fixture{board: b, reg: provider.New(b, b, w), ev: make(chanEmitter, 32)}
}

func (f *fixture) input(id, typ string, params any) core.BuilderInput {
	return core.BuilderInput{ID: id, Type: typ, Params: params, Res: core.Resources{Reg: f.reg, Pub: f.ev}}
}

func (f *fixture) next(t *testing.T) core.Event {
	t.Helper()
	select {
	case ev := <-f.ev:
		return ev
	case <-time.After(300 * time.Millisecond):
		t.Fatal("timeout waiting for device event")
	}
	return core.Event{}
}

func TestBuildRejectsBadParams(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name   string
		typ    string
		params any
		want   errcode.Code
	}{
		{"same pins", types.DeviceRotaryEncoder, types.RotaryEncoderParams{PinA: 2, PinB: 2}, errcode.InvalidParams},
		{"negative pin", types.DeviceRotaryEncoder, types.RotaryEncoderParams{PinA: -1, PinB: 2}, errcode.InvalidParams},
		{"bad mode", types.DeviceRotaryEncoder, types.RotaryEncoderParams{PinA: 2, PinB: 3, Mode: "four1"}, errcode.InvalidMode},
		{"bad pull", types.DeviceRotaryEncoder, types.RotaryEncoderParams{PinA: 2, PinB: 3, Pull: "sideways"}, errcode.InvalidParams},
		{"wrong params", types.DeviceRotaryEncoder, types.PCF8574EncoderParams{}, errcode.InvalidPayload},
		{"unknown pin", types.DeviceRotaryEncoder, types.RotaryEncoderParams{PinA: 2, PinB: 40}, errcode.UnknownPin},
		{"expander line", types.DevicePCF8574Encoder, types.PCF8574EncoderParams{Bus: "i2c0", PinA: 0, PinB: 8}, errcode.InvalidParams},
		{"expander bus", types.DevicePCF8574Encoder, types.PCF8574EncoderParams{Bus: "i2c7", PinA: 0, PinB: 1}, errcode.UnknownBus},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b, ok := core.LookupBuilder(c.typ)
			if !ok {
				t.Fatalf("no builder for %s", c.typ)
			}
			_, err := b.Build(context.Background(), f.input("x", c.typ, c.params))
			if got := errcode.Of(err); got != c.want {
				t.Fatalf("err = %v, want %s", err, c.want)
			}
		})
	}
	// Failed builds leave no claims behind.
	if _, ok := f.reg.PinOwner(2); ok {
		t.Fatal("pin 2 still claimed")
	}
}

func TestDeviceInitControlClose(t *testing.T) {
	f := newFixture(t)
	b, _ := core.LookupBuilder(types.DeviceRotaryEncoder)
	dev, err := b.Build(context.Background(), f.input("knob", types.DeviceRotaryEncoder,
		types.RotaryEncoderParams{PinA: 2, PinB: 3, Pull: "up", Mode: "four0"}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := dev.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	caps := dev.Capabilities()
	if len(caps) != 1 || caps[0].Domain != "input" || caps[0].Name != "knob" || caps[0].Kind != types.KindEncoder {
		t.Fatalf("caps = %#v", caps)
	}
	if caps[0].Info.Driver != "gpio_encoder" {
		t.Fatalf("driver = %q", caps[0].Info.Driver)
	}

	ev := f.next(t)
	if v, ok := ev.Payload.(types.EncoderValue); !ok || v.Position != 0 || ev.EventTag != "" {
		t.Fatalf("initial event = %#v", ev)
	}

	res, err := dev.Control(addrOf(caps[0]), "set_position", types.EncoderSetPosition{Position: -7})
	if err != nil || !res.OK {
		t.Fatalf("set_position = %+v, %v", res, err)
	}
	ev = f.next(t)
	if v, _ := ev.Payload.(types.EncoderValue); v.Position != -7 || v.Direction != 0 {
		t.Fatalf("after set_position = %#v", ev)
	}

	// Four0: a full clockwise cycle from the rest state. Pull-ups put the
	// lines at 3, so drive both low first and re-zero.
	a, _ := f.board.Pin(2)
	bb, _ := f.board.Pin(3)
	bb.SetLevel(false) // 3 -> 1
	a.SetLevel(false)  // 1 -> 0: latch at -7 + 0
	drain(f.ev)
	for _, s := range []uint8{2, 3, 1, 0} {
		a.SetLevel(s&1 != 0)
		bb.SetLevel(s&2 != 0)
	}
	tagged := f.next(t)
	if tagged.EventTag != "cw" {
		t.Fatalf("event tag = %q, want cw", tagged.EventTag)
	}
	if v := f.next(t).Payload.(types.EncoderValue); v.Position != -6 || v.Direction != 1 {
		t.Fatalf("value = %#v", v)
	}

	if res, _ := dev.Control(addrOf(caps[0]), "spin", nil); res.OK || res.Error != errcode.Unsupported {
		t.Fatalf("spin = %+v", res)
	}

	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := f.reg.PinOwner(3); ok {
		t.Fatal("pins not released on Close")
	}
}

func TestExpanderDevice(t *testing.T) {
	f := newFixture(t)
	bus, _ := f.board.Bus("i2c1")
	exp := platform.NewSimExpander(0x20)
	bus.Attach(exp)

	b, _ := core.LookupBuilder(types.DevicePCF8574Encoder)
	dev, err := b.Build(context.Background(), f.input("exp", types.DevicePCF8574Encoder,
		types.PCF8574EncoderParams{Bus: "i2c1", PinA: 0, PinB: 1, PollMs: 1, Name: "vol"}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := dev.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer dev.Close()

	caps := dev.Capabilities()
	det := caps[0].Info.Detail.(types.EncoderInfo)
	if caps[0].Info.Driver != "pcf8574_encoder" || !det.Polled || det.Bus != "i2c1" || det.Addr != 0x20 {
		t.Fatalf("caps = %#v", caps)
	}
	if f.reg.I2CUsers("i2c1") != 1 {
		t.Fatal("bus not claimed")
	}
	_ = f.next(t) // initial value

	for _, s := range []uint8{1, 0, 2, 3} {
		exp.SetInput(0, s&1 != 0)
		exp.SetInput(1, s&2 != 0)
		time.Sleep(8 * time.Millisecond)
	}
	for {
		ev := f.next(t)
		if v, ok := ev.Payload.(types.EncoderValue); ok && ev.EventTag == "" && v.Position == 1 {
			break
		}
	}
}

func drain(c chanEmitter) {
	for {
		select {
		case <-c:
		case <-time.After(20 * time.Millisecond):
			return
		}
	}
}

func addrOf(cs core.CapabilitySpec) core.CapAddr {
	return core.CapAddr{Domain: cs.Domain, Kind: cs.Kind, Name: cs.Name}
}
